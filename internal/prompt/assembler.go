package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"praivio-go/internal/model"
	"praivio-go/internal/sanitize"
	"praivio-go/pkg/log"
)

// 同时解析的附件数量上限
const resolveConcurrency = 4

// FileContent 是附件解密后的提取文本。
type FileContent struct {
	ID       string
	FileName string
	Kind     model.FileKind
	Content  string
}

// FileResolver 按所有者和 id 读取附件内容。
type FileResolver interface {
	ResolveFile(ctx context.Context, ownerID uint, fileID string) (*FileContent, error)
}

// Input 是一次对话轮次的全部组装材料。
type Input struct {
	OwnerID       uint
	SystemPrompt  string
	History       []model.ChatMessage
	AttachedFiles []string
	// ExcludeMessageID 是正在回答的那条消息，它已经入库但不应出现在历史中
	ExcludeMessageID string
	CurrentText      string
}

// Assembler 把系统提示、附件、历史和当前输入拼接成一个提示词。
type Assembler struct {
	files FileResolver
}

func NewAssembler(files FileResolver) *Assembler {
	return &Assembler{files: files}
}

// Assemble 按固定顺序拼接：系统提示、附件（调用方顺序）、历史、当前输入，段落之间空一行。
// 解析失败或没有内容的附件被跳过。
func (a *Assembler) Assemble(ctx context.Context, in Input) string {
	var parts []string

	if sp := strings.TrimSpace(in.SystemPrompt); sp != "" {
		parts = append(parts, "System: "+sp)
	}

	for _, fc := range a.resolveFiles(ctx, in.OwnerID, in.AttachedFiles) {
		if fc == nil || strings.TrimSpace(fc.Content) == "" {
			continue
		}
		parts = append(parts, kindMarker(fc)+"\n"+fc.Content)
	}

	for _, msg := range in.History {
		if in.ExcludeMessageID != "" && msg.ID == in.ExcludeMessageID {
			continue
		}
		switch msg.Role {
		case model.MessageRoleUser:
			parts = append(parts, "User: "+msg.Content)
		case model.MessageRoleAssistant:
			parts = append(parts, "Assistant: "+msg.Content)
		}
	}

	parts = append(parts, "User: "+sanitize.Sanitize(in.CurrentText))
	return strings.Join(parts, "\n\n")
}

// resolveFiles 并发解析附件，结果下标与 ids 一一对应。
func (a *Assembler) resolveFiles(ctx context.Context, ownerID uint, ids []string) []*FileContent {
	if a.files == nil || len(ids) == 0 {
		return nil
	}
	results := make([]*FileContent, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			fc, err := a.files.ResolveFile(gctx, ownerID, id)
			if err != nil {
				log.Warnf("skip attached file %s: %v", id, err)
				return nil
			}
			results[i] = fc
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func kindMarker(fc *FileContent) string {
	switch fc.Kind {
	case model.FileKindPDF:
		return fmt.Sprintf("[PDF: %s]", fc.FileName)
	case model.FileKindImage:
		return fmt.Sprintf("[Bild: %s]", fc.FileName)
	case model.FileKindAudio:
		return fmt.Sprintf("[Audio: %s]", fc.FileName)
	default:
		return fmt.Sprintf("[Datei: %s]", fc.FileName)
	}
}
