package roomhandler

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty" example:"PasscodeRequired"`
} // @name ErrorResponse

type ListMessagesQuery struct {
	SegmentID string `form:"segment_id" binding:"max=128"`
	Limit     int    `form:"limit,default=50" binding:"gte=0,lte=200"`
	Offset    int    `form:"offset,default=0" binding:"gte=0"`
} // @name ListMessagesQuery

type HealthResponse struct {
	Status      string `json:"status"      example:"ok"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
} // @name HealthResponse
