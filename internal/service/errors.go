package service

import "errors"

// 服务层错误分类。Handler 和 Hub 依赖 errors.Is 将这些 sentinel
// 映射为 HTTP 状态码 / WebSocket 错误事件，不解析错误文本。
var (
	// ErrInvalidInput 输入校验失败 (为空、超长、格式非法)
	ErrInvalidInput = errors.New("invalid input")

	// ErrAuthenticationFailed 用户名或密码错误。登录失败统一返回
	// 该错误，不区分"用户不存在"和"密码错误"。
	ErrAuthenticationFailed = errors.New("invalid username or password")

	// ErrRegistrationFailed 注册失败 (用户名已被占用)
	ErrRegistrationFailed = errors.New("registration failed: username already exists")

	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")

	// ErrRoomNotFound 房间不存在
	ErrRoomNotFound = errors.New("room not found")

	// ErrMessageNotFound 消息不存在 (或不属于指定房间)
	ErrMessageNotFound = errors.New("message not found")

	// ErrDuplicateRoomName 房间名已存在
	ErrDuplicateRoomName = errors.New("room name already exists")

	// ErrAlreadyMember 用户已经是房间成员
	ErrAlreadyMember = errors.New("user is already a member of this room")

	// ErrMembershipNotFound 用户不是房间成员 (离开房间时)
	ErrMembershipNotFound = errors.New("user is not a member of this room")

	// ErrNotMember 房间级操作要求成员资格
	ErrNotMember = errors.New("not a member of this room")

	// ErrForbidden 请求者无权操作该资源 (如删除他人消息)
	ErrForbidden = errors.New("permission denied")

	// ErrRateLimited 发送频率超出配额
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInternalServer 未分类的内部错误，细节只进日志不出接口
	ErrInternalServer = errors.New("internal server error")
)
