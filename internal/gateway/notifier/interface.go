package notifier

// TextNotifier 是最小的文本推送接口，调用方不依赖具体实现。
type TextNotifier interface {
	SendText(text string) error
}

// NopNotifier 在 Telegram 未启用或配置不完整时使用，丢弃所有消息。
type NopNotifier struct{}

func (NopNotifier) SendText(string) error { return nil }
