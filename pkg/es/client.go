// Package es 提供了与 Elasticsearch 交互的客户端功能，用于审计事件的检索镜像。
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"praivio-go/internal/config"
	"praivio-go/internal/model"
	"praivio-go/pkg/log"
)

var ESClient *elasticsearch.Client

const auditMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "long" },
			"user_id": { "type": "long" },
			"action": { "type": "keyword" },
			"details": { "type": "text" },
			"ip_address": { "type": "keyword" },
			"user_agent": { "type": "text" },
			"success": { "type": "boolean" },
			"error_message": { "type": "text" },
			"timestamp": { "type": "date" }
		}
	}
}`

// NewClient 创建 Elasticsearch 客户端，Addresses 以逗号分隔。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	})
}

// InitES 初始化全局客户端并确保审计索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	client, err := NewClient(esCfg)
	if err != nil {
		return err
	}
	ESClient = client
	return NewAuditIndex(client, esCfg.IndexName).EnsureIndex(context.Background())
}

// AuditIndex 把审计事件写入一个索引并支持全文检索。
type AuditIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewAuditIndex(client *elasticsearch.Client, index string) *AuditIndex {
	return &AuditIndex{client: client, index: index}
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (a *AuditIndex) EnsureIndex(ctx context.Context) error {
	res, err := a.client.Indices.Exists([]string{a.index}, a.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", a.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = a.client.Indices.Create(
		a.index,
		a.client.Indices.Create.WithBody(strings.NewReader(auditMapping)),
		a.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", a.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.String())
	}
	log.Infof("索引 '%s' 创建成功", a.index)
	return nil
}

// Index 写入一条审计事件，以数据库 id 作为文档 id。
func (a *AuditIndex) Index(ctx context.Context, e *model.AuditEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      a.index,
		DocumentID: strconv.FormatUint(uint64(e.ID), 10),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index audit event: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source model.AuditEvent `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 在 action、details、ip_address 和 error_message 上做全文检索，按时间倒序返回。
func (a *AuditIndex) Search(ctx context.Context, query string, size int) ([]model.AuditEvent, error) {
	if size <= 0 {
		size = 50
	}
	q := map[string]interface{}{
		"size": size,
		"sort": []interface{}{map[string]interface{}{"timestamp": map[string]string{"order": "desc"}}},
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"action", "details", "ip_address", "error_message"},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, err
	}

	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(a.index),
		a.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.New("audit search failed: " + res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	events := make([]model.AuditEvent, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		events = append(events, h.Source)
	}
	return events, nil
}
