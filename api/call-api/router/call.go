package call_routers

import (
	"github.com/gin-gonic/gin"

	callApi "github.com/rapidaai/callbridge/api/call-api/api"
	internal_bot "github.com/rapidaai/callbridge/api/call-api/internal/bot"
	internal_recording "github.com/rapidaai/callbridge/api/call-api/internal/recording"
	internal_registry "github.com/rapidaai/callbridge/api/call-api/internal/registry"
	internal_vobiz "github.com/rapidaai/callbridge/api/call-api/internal/telephony/vobiz"
	"github.com/rapidaai/callbridge/config"
	"github.com/rapidaai/callbridge/pkg/commons"
)

func CallApiRoutes(
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	registry internal_registry.Registry,
	carrier internal_vobiz.Client,
	downloader internal_recording.Downloader,
	bot internal_bot.Handler,
) {
	logger.Info("CallApiRoutes added to engine.")
	root := engine.Group("")
	cApi := callApi.NewCallApi(cfg, logger, registry, carrier, downloader, bot)
	{
		root.POST("/start", cApi.StartCall)
		root.GET("/answer", cApi.Answer)
		root.POST("/answer", cApi.Answer)
		root.GET("/recording-finished", cApi.RecordingFinished)
		root.POST("/recording-finished", cApi.RecordingFinished)
		root.GET("/recording-ready", cApi.RecordingReady)
		root.POST("/recording-ready", cApi.RecordingReady)
		root.POST("/transfer-to-human", cApi.TransferToHuman)
		root.POST("/initiate-transfer", cApi.InitiateTransfer)
		root.GET("/active-calls", cApi.ActiveCalls)

		// The carrier dials whichever stream path the answer document
		// advertised; older deployments used the shorter aliases.
		root.GET("/voice/ws", cApi.MediaStream)
		root.GET("/ws", cApi.MediaStream)
		root.GET("/stream", cApi.MediaStream)
		root.GET("/", cApi.MediaStream)
	}
}
