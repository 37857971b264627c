package api

import "github.com/gin-gonic/gin"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	streams := s.router.Group("/streams")
	{
		streams.GET("", s.streamHandler.ListStatuses)
		streams.POST("/start-all", s.streamHandler.StartAll)
		streams.POST("/stop-all", s.streamHandler.StopAll)
		streams.POST("/:camera_id/start", s.streamHandler.StartStream)
		streams.POST("/:camera_id/stop", s.streamHandler.StopStream)
		streams.POST("/:camera_id/restart", s.streamHandler.RestartStream)
		streams.GET("/:camera_id/status", s.streamHandler.GetStatus)
		streams.GET("/:camera_id/snapshot", s.streamHandler.GetSnapshot)
	}

	s.router.GET("/events", s.eventHandler.ListRecent)

	s.router.GET("/ws/cameras/:camera_id", s.serveCameraSocket)
	s.router.GET("/ws/events", s.serveEventsSocket)

	if s.met != nil {
		s.router.GET("/metrics", gin.WrapH(s.met.Handler()))
	}
}
