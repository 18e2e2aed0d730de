// Package api 暴露 REST 接口：动作列表与同步调用、异步任务、调用历史、
// 健康检查与 Prometheus 指标。
package api
