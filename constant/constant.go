package constant

const (
	// 检索类接口缺省返回条数
	DefaultSearchTopK = 5
)

const (
	EmptyString = ""
)

// 对话拼接相关的提示词常量
const (
	// 空输入时的兜底回复（兼容旧前端，不走检索和大模型）
	EmptyMessageReply = "请先输入你的问题。"

	// 时间范围抽取的系统提示词，要求严格 JSON 输出
	TimeExtractSystemPrompt = "你是一个时间范围信息抽取器。你的任务是从用户中文输入中抽取日期/时间限制，并输出严格 JSON。\n" +
		"输出字段仅允许：date_start, date_end, time_start, time_end。\n" +
		"- date_* 使用整数 YYYYMMDD，例如 20260106。\n" +
		"- time_* 使用整数 HHMM，例如 930 表示 09:30，1900 表示 19:00。\n" +
		"- 如果用户没有给出对应限制，请输出 null。\n" +
		"- 需要解析相对时间（如 今天/明天/本周/下周/周五/今晚/下午 等），相对基准为给定的当前时间。\n" +
		"- 如果只给出单日，date_start=date_end。\n" +
		"- 如果只给出一个时间点（如 下午三点），优先填 time_start，time_end 为 null。\n" +
		"- 不要输出任何额外字段，不要输出解释。"

	// 时间范围抽取的用户提示词模板，参数：当前时间（含星期）、用户输入
	TimeExtractUserPromptTemplate = "当前时间：%s\n用户输入：%s"

	// 校园活动助手的系统提示词模板，参数：日期、星期、时分、季节
	AgentSystemPromptTemplate = "你是校园活动助手，擅长汇总与推荐活动。当前时间：%s 星期%s %s（%s）。" +
		"请根据当前时间提供时效性准确的回答。" +
		"你的知识库包含校园活动信息，回答时请：" +
		"1. 优先推荐正在报名或即将开始的活动" +
		"2. 过期活动应明确提示已结束" +
		"3. 以要点形式简洁回答，并标注活动来源" +
		"4. 如信息不确定，请明确说明"

	// 检索片段拼接进用户消息的模板，参数：用户问题、片段条数、片段内容
	AgentUserPromptTemplate = "用户问题：%s\n\n检索片段（最多%d条）：\n%s\n\n请基于片段作答；若片段不足，请明确说明假设。"
)

// 日程事件在向量库中的 id 前缀
const (
	ScheduleIDPrefix = "schedule:"
	ScheduleSource   = "schedule"
)
