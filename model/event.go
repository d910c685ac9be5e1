package model

// EventType 日程事件类型
type EventType string

const (
	EventTypeCourse       EventType = "course"
	EventTypeActivity     EventType = "activity"
	EventTypeExam         EventType = "exam"
	EventTypeMeeting      EventType = "meeting"
	EventTypeAnnouncement EventType = "announcement"
)

// Valid 校验事件类型是否合法
func (t EventType) Valid() bool {
	switch t {
	case EventTypeCourse, EventTypeActivity, EventTypeExam, EventTypeMeeting, EventTypeAnnouncement:
		return true
	}
	return false
}

// ScheduleEvent 日程事件，date 为 "2006-01-02"，startTime/endTime 为 "15:04"
type ScheduleEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Location    string    `json:"location,omitempty"`
	Type        EventType `json:"type"`
	Description string    `json:"description,omitempty"`
}

// CreateEventRequest 创建日程事件请求
type CreateEventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Date        string    `json:"date" binding:"required"`
	StartTime   string    `json:"startTime" binding:"required"`
	EndTime     string    `json:"endTime" binding:"required"`
	Location    string    `json:"location"`
	Type        EventType `json:"type" binding:"required"`
	Description string    `json:"description"`
}

// UpdateEventRequest 更新日程事件请求，零值字段保持原值
type UpdateEventRequest struct {
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Location    string    `json:"location"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
}
