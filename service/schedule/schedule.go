package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/constant"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/timeutil"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/timeconstraint"
)

// Store 日程事件的底层向量存储能力，由检索适配层提供
type Store interface {
	Upsert(ctx context.Context, ids, texts []string, metadatas []map[string]interface{}) error
	Query(ctx context.Context, text string, k int, where map[string]interface{}) ([]model.QueryRow, error)
	GetAll(ctx context.Context) ([]model.QueryRow, error)
	Delete(ctx context.Context, ids []string) error
}

// FilterBuilder 从查询文本推导时间过滤条件
type FilterBuilder interface {
	BuildFilter(ctx context.Context, userText string, now time.Time) (map[string]interface{}, timeconstraint.Constraint)
}

// Service 日程事件管理。事件唯一落在向量集合里：文本是渲染后的活动描述，
// 结构化字段放在元数据里（日期、时刻存成整数，供范围过滤）。
type Service struct {
	store   Store
	filters FilterBuilder // 可以为 nil，检索时不做时间过滤
}

func NewService(store Store, filters FilterBuilder) *Service {
	return &Service{store: store, filters: filters}
}

// EventHit 带相似距离的检索结果
type EventHit struct {
	Event    model.ScheduleEvent `json:"event"`
	Distance float64             `json:"distance"`
}

// Create 创建事件，id 由服务端生成
func (s *Service) Create(ctx context.Context, req *model.CreateEventRequest) (*model.ScheduleEvent, error) {
	event := &model.ScheduleEvent{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Location:    strings.TrimSpace(req.Location),
		Type:        req.Type,
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.save(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Get 按 id 查询事件
func (s *Service) Get(ctx context.Context, id string) (*model.ScheduleEvent, error) {
	if id == "" {
		return nil, model.NewErrorWithMessage(model.ErrorEmptyId, "id 为空")
	}
	rows, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	recordID := constant.ScheduleIDPrefix + id
	for _, row := range rows {
		if row.ID != recordID {
			continue
		}
		event, ok := eventFromMetadata(row.Metadata)
		if !ok {
			return nil, model.NewErrorWithMessage(model.ErrorNotFound, "记录已损坏")
		}
		return event, nil
	}
	return nil, model.NewErrorWithMessage(model.ErrorNotFound, "事件不存在")
}

// List 列出事件，date 非空时只保留当日，按日期和开始时刻排序。
// 元数据损坏（如非法类型）的记录跳过并告警，不拖垮整个列表。
func (s *Service) List(ctx context.Context, date string) ([]model.ScheduleEvent, error) {
	if date != "" {
		if _, err := timeutil.DateToInt(date); err != nil {
			return nil, model.NewErrorWithMessage(model.ErrorParams, "date 格式应为 2006-01-02")
		}
	}

	rows, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]model.ScheduleEvent, 0, len(rows))
	for _, row := range rows {
		if cast.ToString(row.Metadata["source"]) != constant.ScheduleSource {
			continue
		}
		event, ok := eventFromMetadata(row.Metadata)
		if !ok {
			log.Warnf("skip malformed schedule record %s", row.ID)
			continue
		}
		if date != "" && event.Date != date {
			continue
		}
		events = append(events, *event)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].StartTime < events[j].StartTime
	})
	return events, nil
}

// Update 更新事件，零值字段保持原值
func (s *Service) Update(ctx context.Context, id string, req *model.UpdateEventRequest) (*model.ScheduleEvent, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		event.Title = strings.TrimSpace(req.Title)
	}
	if req.Date != "" {
		event.Date = req.Date
	}
	if req.StartTime != "" {
		event.StartTime = req.StartTime
	}
	if req.EndTime != "" {
		event.EndTime = req.EndTime
	}
	if req.Location != "" {
		event.Location = strings.TrimSpace(req.Location)
	}
	if req.Type != "" {
		event.Type = req.Type
	}
	if req.Description != "" {
		event.Description = strings.TrimSpace(req.Description)
	}

	if err := s.save(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Delete 删除事件，id 不存在时返回 not found
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, []string{constant.ScheduleIDPrefix + id})
}

// Search 按自然语言检索事件，只在日程来源的记录里找。
// 查询文本里的时间限定（如 明天下午）会转成元数据过滤，零命中时退回纯来源过滤。
func (s *Service) Search(ctx context.Context, query string, k int, now time.Time) ([]EventHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, model.NewErrorWithMessage(model.ErrorParams, "query 不能为空")
	}
	if k <= 0 {
		k = constant.DefaultSearchTopK
	}

	sourceOnly := map[string]interface{}{"source": constant.ScheduleSource}
	where := sourceOnly
	timeFiltered := false
	if s.filters != nil {
		if timeWhere, _ := s.filters.BuildFilter(ctx, query, now); timeWhere != nil {
			where = map[string]interface{}{"$and": []map[string]interface{}{sourceOnly, timeWhere}}
			timeFiltered = true
		}
	}

	rows, err := s.store.Query(ctx, query, k, where)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 && timeFiltered {
		rows, err = s.store.Query(ctx, query, k, sourceOnly)
		if err != nil {
			return nil, err
		}
	}

	hits := make([]EventHit, 0, len(rows))
	for _, row := range rows {
		event, ok := eventFromMetadata(row.Metadata)
		if !ok {
			log.Warnf("skip malformed schedule record %s in search", row.ID)
			continue
		}
		hits = append(hits, EventHit{Event: *event, Distance: row.Distance})
	}
	return hits, nil
}

// save 校验并写入向量集合，同 id 覆盖
func (s *Service) save(ctx context.Context, event *model.ScheduleEvent) error {
	dateInt, startInt, endInt, err := validate(event)
	if err != nil {
		return err
	}

	metadata := map[string]interface{}{
		"eventId":     event.ID,
		"title":       event.Title,
		"date":        dateInt,
		"startTime":   startInt,
		"endTime":     endInt,
		"location":    event.Location,
		"type":        string(event.Type),
		"description": event.Description,
		"source":      constant.ScheduleSource,
	}
	return s.store.Upsert(ctx,
		[]string{constant.ScheduleIDPrefix + event.ID},
		[]string{renderEventText(event)},
		[]map[string]interface{}{metadata})
}

func validate(event *model.ScheduleEvent) (dateInt, startInt, endInt int, err error) {
	if event.Title == "" {
		return 0, 0, 0, model.NewErrorWithMessage(model.ErrorParams, "title 不能为空")
	}
	if !event.Type.Valid() {
		return 0, 0, 0, model.NewErrorWithMessage(model.ErrorParams, "type 非法")
	}
	if dateInt, err = timeutil.DateToInt(event.Date); err != nil {
		return 0, 0, 0, model.NewErrorWithMessage(model.ErrorParams, "date 格式应为 2006-01-02")
	}
	if startInt, err = timeutil.ClockToInt(event.StartTime); err != nil {
		return 0, 0, 0, model.NewErrorWithMessage(model.ErrorParams, "startTime 格式应为 15:04")
	}
	if endInt, err = timeutil.ClockToInt(event.EndTime); err != nil {
		return 0, 0, 0, model.NewErrorWithMessage(model.ErrorParams, "endTime 格式应为 15:04")
	}
	if startInt > endInt {
		return 0, 0, 0, model.NewErrorWithMessage(model.ErrorParams, "startTime 不能晚于 endTime")
	}
	return dateInt, startInt, endInt, nil
}

// renderEventText 事件的向量化文本，中文拼接以贴合查询语言
func renderEventText(event *model.ScheduleEvent) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("【%s】%s，日期 %s，时间 %s-%s", typeCN(event.Type), event.Title, event.Date, event.StartTime, event.EndTime))
	if event.Location != "" {
		sb.WriteString("，地点 " + event.Location)
	}
	if event.Description != "" {
		sb.WriteString("。" + event.Description)
	}
	return sb.String()
}

func typeCN(t model.EventType) string {
	switch t {
	case model.EventTypeCourse:
		return "课程"
	case model.EventTypeActivity:
		return "活动"
	case model.EventTypeExam:
		return "考试"
	case model.EventTypeMeeting:
		return "会议"
	case model.EventTypeAnnouncement:
		return "通知"
	default:
		return string(t)
	}
}

// eventFromMetadata 从向量库元数据重建事件，类型非法视为记录损坏
func eventFromMetadata(metadata map[string]interface{}) (*model.ScheduleEvent, bool) {
	if metadata == nil {
		return nil, false
	}

	eventType := model.EventType(cast.ToString(metadata["type"]))
	if !eventType.Valid() {
		return nil, false
	}

	dateInt, err := cast.ToIntE(metadata["date"])
	if err != nil {
		return nil, false
	}

	return &model.ScheduleEvent{
		ID:          cast.ToString(metadata["eventId"]),
		Title:       cast.ToString(metadata["title"]),
		Date:        timeutil.IntToDate(dateInt),
		StartTime:   timeutil.IntToClock(cast.ToInt(metadata["startTime"])),
		EndTime:     timeutil.IntToClock(cast.ToInt(metadata["endTime"])),
		Location:    cast.ToString(metadata["location"]),
		Type:        eventType,
		Description: cast.ToString(metadata["description"]),
	}, true
}
