// Package callback 将 Eino ChatModel 回调接入 Prometheus 与 OpenTelemetry
package callback

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var registerOnce sync.Once

// Handler 只处理 ChatModel 组件的回调
func Handler() einocallbacks.Handler {
	return cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler()).
		Handler()
}

// Init 进程内只注册一次。Anthropic Messages 客户端不经过 Eino，指标由客户端自行上报。
func Init() {
	registerOnce.Do(func() {
		einocallbacks.AppendGlobalHandlers(Handler())
	})
}
