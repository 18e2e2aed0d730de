package errors

import (
	"cmp"
	stdErrors "errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Code 是统一错误码，也是动作结果中 code 字段的取值。
type Code string

// Severity 决定审计日志级别与告警事件的等级。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Group 把错误码按来源归类。
type Group string

const (
	GroupService  Group = "service"
	GroupChain    Group = "chain"
	GroupDispatch Group = "dispatch"
)

// Attributes 是错误码的登记信息。系统内不存在自动重试，因此没有可重试标记。
type Attributes struct {
	Message  string
	Severity Severity
	// Alert 为 true 时，以该错误码失败的调用会触发告警。
	Alert bool
	Group Group
}

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"

	CodeValidation          Code = "VALIDATION_FAILED"
	CodeTokenNotFound       Code = "TOKEN_NOT_FOUND"
	CodeChainQuery          Code = "CHAIN_QUERY_FAILED"
	CodeSimulation          Code = "SIMULATION_FAILED"
	CodeSubmission          Code = "SUBMISSION_FAILED"
	CodeConfirmationTimeout Code = "CONFIRMATION_TIMEOUT"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeUpstream            Code = "UPSTREAM_FAILED"

	CodeUnknownAction   Code = "UNKNOWN_ACTION"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeDuplicateAction Code = "DUPLICATE_ACTION"
	CodeHandlerPanic    Code = "HANDLER_PANIC"
)

var catalog = struct {
	sync.RWMutex
	codes map[Code]Attributes
}{codes: make(map[Code]Attributes)}

func init() {
	service := map[Code]Attributes{
		CodeUnknown:               {"unknown error", SeverityCritical, true, ""},
		CodeInvalidArgument:       {"invalid argument", SeverityInfo, false, ""},
		CodeNotFound:              {"resource not found", SeverityInfo, false, ""},
		CodeConflict:              {"resource conflict", SeverityWarning, false, ""},
		CodeInitializationFailure: {"service not initialized", SeverityWarning, true, ""},
		CodeStorageFailure:        {"storage failure", SeverityCritical, true, ""},
		CodeQueueFailure:          {"queue failure", SeverityCritical, true, ""},
		CodeTimeout:               {"operation timed out", SeverityWarning, false, ""},
	}
	chain := map[Code]Attributes{
		CodeValidation:          {"validation failed", SeverityInfo, false, ""},
		CodeTokenNotFound:       {"token not found", SeverityInfo, false, ""},
		CodeChainQuery:          {"chain query failed", SeverityWarning, false, ""},
		CodeSimulation:          {"transaction simulation failed", SeverityWarning, false, ""},
		CodeSubmission:          {"transaction submission failed", SeverityCritical, true, ""},
		CodeConfirmationTimeout: {"transaction confirmation timed out", SeverityWarning, true, ""},
		CodeInsufficientBalance: {"insufficient balance", SeverityInfo, false, ""},
		CodeUpstream:            {"upstream service failed", SeverityWarning, false, ""},
	}
	dispatch := map[Code]Attributes{
		CodeUnknownAction:   {"unknown action", SeverityInfo, false, ""},
		CodeInvalidInput:    {"invalid input", SeverityInfo, false, ""},
		CodeDuplicateAction: {"action already registered", SeverityWarning, false, ""},
		CodeHandlerPanic:    {"action handler panicked", SeverityCritical, true, ""},
	}
	RegisterGroup(GroupService, service)
	RegisterGroup(GroupChain, chain)
	RegisterGroup(GroupDispatch, dispatch)
}

// Register 登记或覆盖一个错误码，通常在包的 init 中调用。
func Register(code Code, attr Attributes) {
	catalog.Lock()
	defer catalog.Unlock()
	catalog.codes[code] = attr
}

// RegisterGroup 以同一分组登记一批错误码。
func RegisterGroup(group Group, codes map[Code]Attributes) {
	catalog.Lock()
	defer catalog.Unlock()
	for code, attr := range codes {
		attr.Group = group
		catalog.codes[code] = attr
	}
}

// AttributesOf 返回错误码的登记信息，未登记时退回 UNKNOWN。
func AttributesOf(code Code) Attributes {
	catalog.RLock()
	defer catalog.RUnlock()
	if attr, ok := catalog.codes[code]; ok {
		return attr
	}
	return catalog.codes[CodeUnknown]
}

// Entry 是 Catalog 的一行。
type Entry struct {
	Code Code
	Attributes
}

// Catalog 按分组、错误码排序列出全部已登记的错误码。
func Catalog() []Entry {
	catalog.RLock()
	codes := slices.Collect(maps.Keys(catalog.codes))
	entries := make([]Entry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, Entry{Code: code, Attributes: catalog.codes[code]})
	}
	catalog.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Group, b.Group), cmp.Compare(a.Code, b.Code))
	})
	return entries
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	severity Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加上下文，例如交易哈希、合约地址或出错的字段名。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string, 1)
		}
		e.metadata[key] = value
	}
}

// WithSeverity 覆盖错误码登记的严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.severity = sev }
}

// New 创建错误；message 为空时使用登记的默认消息。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 为 cause 附上错误码与说明。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", e.code, e.Detail())
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 让 errors.Is 以错误码比较两个 *Error。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含底层原因的说明。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Detail 返回说明加底层原因。链上失败时原因通常是节点返回的 revert 信息，调用方需要看到它。
func (e *Error) Detail() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return e.message + ": " + e.cause.Error()
	default:
		return e.message
	}
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != "" {
		return e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 在错误链上查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链上第一个 *Error 的错误码，找不到时为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HasCode 判断错误链上是否存在指定错误码。
func HasCode(err error, code Code) bool {
	return stdErrors.Is(err, &Error{code: code})
}

// SeverityOf 返回错误严重程度，非 *Error 视为 UNKNOWN。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
