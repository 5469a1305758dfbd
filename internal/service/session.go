package service

// SessionRefresher 在成员活动 (加入房间、发送消息) 成功后异步延长
// 会话记录的 TTL。实现方不应阻塞调用路径：入队失败只记日志，
// 绝不影响主操作的结果。
type SessionRefresher interface {
	EnqueueSessionRefresh(userID uint) error
}
