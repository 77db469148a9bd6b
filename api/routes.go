package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers every relay endpoint on r against h.
func SetupRoutes(r *gin.Engine, h *Handlers) {
	r.GET("/health", h.Health)

	r.POST("/pair/initiate", h.InitiatePairing)
	r.GET("/pair/status/:watchId", h.PairingStatus)
	r.POST("/pair/complete", h.CompletePairing)

	r.POST("/approval", h.CreateApproval)
	r.GET("/approval-queue/:pairingId", h.ApprovalQueue)
	r.DELETE("/approval-queue/:pairingId", h.ClearApprovalQueue)
	r.POST("/approval/:requestId", h.RespondToApproval)
	r.GET("/approval/:pairingId/:requestId", h.ApprovalResponse)

	r.POST("/question", h.CreateQuestion)
	r.GET("/question-queue/:pairingId", h.QuestionQueue)
	r.DELETE("/question-queue/:pairingId", h.ClearQuestionQueue)
	r.POST("/question/:questionId", h.RespondToQuestion)
	r.GET("/question/:pairingId/:questionId", h.QuestionResponse)

	r.POST("/session-progress", h.PutSessionProgress)
	r.GET("/session-progress/:pairingId", h.GetSessionProgress)
	r.POST("/session-end", h.EndSession)
	r.GET("/session-status/:pairingId", h.SessionStatus)
	r.POST("/session-interrupt", h.SessionInterrupt)
	r.GET("/session-interrupt/:pairingId", h.SessionInterruptStatus)
	r.POST("/session-mode", h.SetSessionMode)
	r.GET("/session-mode/:pairingId", h.SessionMode)

	r.GET("/stream/:pairingId", h.StreamSync)
}
