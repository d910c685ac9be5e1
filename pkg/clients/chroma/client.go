package chroma

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/config"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/httptool"
)

const (
	clientNameChroma = "chroma"

	apiPrefix      = "/api/v1"
	DefaultTimeout = 30 // 秒
)

var (
	instance *Client
	once     sync.Once
)

// Client Chroma HTTP 客户端，只覆盖本项目用到的接口。
// 集合按名字定位，服务端返回的集合 id 缓存在客户端，重建集合后刷新。
type Client struct {
	hc         *httptool.HTTPClient
	collection string

	idMu         sync.Mutex
	collectionID string
}

// QueryResponse Chroma 原生按列组织的查询结果（外层对应每条查询向量）
type QueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
}

// GetResponse 全量拉取结果（不分查询维度，平铺数组）
type GetResponse struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetInstance 获取 Chroma 客户端单例
func GetInstance() *Client {
	once.Do(func() {
		cfg := config.GetInstance()
		addr := cfg.GetString(config.ChromaConfigKeyAddr)
		collection := cfg.GetString(config.ChromaConfigKeyCollection)
		timeout := cfg.GetIntOrDefault(config.ChromaConfigKeyTimeout, DefaultTimeout)

		instance = NewClient(addr, collection, time.Duration(timeout)*time.Second)
		if token := cfg.GetString(config.ChromaConfigKeyToken); token != "" {
			instance.SetToken(token)
		}
	})
	return instance
}

// NewClient 创建 Chroma 客户端
func NewClient(addr, collection string, timeout time.Duration) *Client {
	return &Client{
		hc:         httptool.NewHTTPClient(addr, clientNameChroma, timeout),
		collection: collection,
	}
}

// SetToken 配置服务端鉴权 token，后续请求都带上
func (c *Client) SetToken(token string) {
	c.hc.SetHeader(httptool.HeaderAuthorization, "Bearer "+token)
}

// Collection 集合名
func (c *Client) Collection() string {
	return c.collection
}

// Heartbeat 探活
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := c.hc.GetWithContext(ctx, apiPrefix+"/heartbeat")
	return err
}

// ensureCollection 获取或创建集合，缓存集合 id
func (c *Client) ensureCollection(ctx context.Context) (string, error) {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	body := map[string]interface{}{
		"name":          c.collection,
		"get_or_create": true,
	}
	resp, err := c.hc.PostJSONWithContext(ctx, apiPrefix+"/collections", body)
	if err != nil {
		return "", errors.Wrapf(err, "get_or_create collection %s", c.collection)
	}

	var info collectionInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return "", errors.Wrapf(err, "decode collection info: %s", string(resp))
	}
	if info.ID == "" {
		return "", fmt.Errorf("collection %s has no id in response: %s", c.collection, string(resp))
	}

	c.collectionID = info.ID
	return c.collectionID, nil
}

// Upsert 按 id 写入或覆盖记录
func (c *Client) Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]interface{}, embeddings [][]float64) error {
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": embeddings,
	}
	if _, err := c.hc.PostJSONWithContext(ctx, fmt.Sprintf("%s/collections/%s/upsert", apiPrefix, id), body); err != nil {
		return errors.Wrap(err, "chroma upsert")
	}
	return nil
}

// Query 相似查询，返回按列组织的原生结果，转换由上层负责。
// where 为 nil 时不限定元数据。
func (c *Client) Query(ctx context.Context, embedding []float64, k int, where map[string]interface{}) (*QueryResponse, error) {
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"query_embeddings": [][]float64{embedding},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if where != nil {
		body["where"] = where
	}

	resp, err := c.hc.PostJSONWithContext(ctx, fmt.Sprintf("%s/collections/%s/query", apiPrefix, id), body)
	if err != nil {
		// 维度不匹配等错误文本原样向上传递，由上层识别
		return nil, errors.Wrap(err, "chroma query")
	}

	var result QueryResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, errors.Wrapf(err, "decode query response: %s", string(resp))
	}
	return &result, nil
}

// Get 全量拉取集合内容
func (c *Client) Get(ctx context.Context) (*GetResponse, error) {
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"include": []string{"documents", "metadatas"},
	}
	resp, err := c.hc.PostJSONWithContext(ctx, fmt.Sprintf("%s/collections/%s/get", apiPrefix, id), body)
	if err != nil {
		return nil, errors.Wrap(err, "chroma get")
	}

	var result GetResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, errors.Wrapf(err, "decode get response: %s", string(resp))
	}
	return &result, nil
}

// Delete 按 id 删除，id 不存在时 Chroma 视为无事发生
func (c *Client) Delete(ctx context.Context, ids []string) error {
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}

	body := map[string]interface{}{"ids": ids}
	if _, err := c.hc.PostJSONWithContext(ctx, fmt.Sprintf("%s/collections/%s/delete", apiPrefix, id), body); err != nil {
		return errors.Wrap(err, "chroma delete")
	}
	return nil
}

// Drop 删除整个集合并清掉缓存的集合 id，下次调用时重建
func (c *Client) Drop(ctx context.Context) error {
	c.idMu.Lock()
	c.collectionID = ""
	c.idMu.Unlock()

	if _, err := c.hc.DeleteWithContext(ctx, fmt.Sprintf("%s/collections/%s", apiPrefix, c.collection)); err != nil {
		log.Warnf("%s drop collection %s: %v", clientNameChroma, c.collection, err)
		return errors.Wrap(err, "chroma drop collection")
	}
	return nil
}
