package model

// QueryRow 向量库查询结果的行式投影，每次查询新建，不落盘
type QueryRow struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"document"`
	Metadata map[string]interface{} `json:"metadata"`
	Distance float64                `json:"distance"`
}

// IngestItem RAG 入库条目
type IngestItem struct {
	ID       string                 `json:"id" binding:"required"`
	Text     string                 `json:"text" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}
