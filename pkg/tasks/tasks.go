// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// FileExtractionTask 描述一个待提取文本的附件。
type FileExtractionTask struct {
	FileID      string `json:"file_id"`
	ObjectKey   string `json:"object_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Kind        string `json:"kind"`
	UserID      uint   `json:"user_id"`
}
