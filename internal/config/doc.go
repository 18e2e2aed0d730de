// Package config 读取 StoryAgent 的 JSON 配置文件，补齐默认值，
// 并用环境变量覆盖 RPC 地址与钱包私钥。
package config
