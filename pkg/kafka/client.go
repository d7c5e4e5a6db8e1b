// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"praivio-go/internal/config"
	"praivio-go/pkg/log"
	"praivio-go/pkg/tasks"
)

// 单条消息的最大处理次数，超过后提交 offset 放弃
const maxAttempts = 3

// TaskProcessor 处理一条文件提取任务。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.FileExtractionTask) error
}

// Producer 发布文件提取任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者，Brokers 以逗号分隔。
func NewProducer(cfg config.KafkaConfig) *Producer {
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

// PublishExtraction 发送一个文件提取任务，以文件 id 作为消息 key。
func (p *Producer) PublishExtraction(ctx context.Context, task tasks.FileExtractionTask) error {
	value, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.FileID), Value: value})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动消费循环，直到 ctx 被取消。
// 处理失败时原地重试，达到 maxAttempts 后提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.FileExtractionTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, offset %d", err, m.Offset)
			commit(ctx, r, m)
			continue
		}

		handle(ctx, processor, task)
		commit(ctx, r, m)
	}
}

func handle(ctx context.Context, processor TaskProcessor, task tasks.FileExtractionTask) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("文件提取任务处理成功: file=%s", task.FileID)
			return
		}
		log.Warnf("文件提取任务失败: file=%s attempt=%d error=%v", task.FileID, attempt, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	log.Errorf("文件提取任务多次失败，放弃: file=%s", task.FileID)
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
