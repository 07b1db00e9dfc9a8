package filetask

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/alphadeepmind/llmserve/internal/docparse"
	"github.com/alphadeepmind/llmserve/internal/prompts"
)

//go:embed summarize_zh.tmpl
var summarizeZh string

//go:embed summarize_en.tmpl
var summarizeEn string

//go:embed instruct_zh.tmpl
var instructZh string

//go:embed instruct_en.tmpl
var instructEn string

// Prompt keys
const (
	SummarizeZhKey = "filetask.summarize.zh"
	SummarizeEnKey = "filetask.summarize.en"
	InstructZhKey  = "filetask.instruct.zh"
	InstructEnKey  = "filetask.instruct.en"
)

const (
	defaultInstructionZh = "總結一下"
	defaultInstructionEn = "Summarize"
)

var templates = map[string]*template.Template{
	SummarizeZhKey: prompts.MustParse("filetask_summarize_zh", summarizeZh),
	SummarizeEnKey: prompts.MustParse("filetask_summarize_en", summarizeEn),
	InstructZhKey:  prompts.MustParse("filetask_instruct_zh", instructZh),
	InstructEnKey:  prompts.MustParse("filetask_instruct_en", instructEn),
}

// Input describes one file task.
type Input struct {
	Filename    string
	SizeBytes   int
	Text        string
	Instruction string

	ChunkChars int // Characters per chunk
	MaxChunks  int // Chunks kept
}

// Prompt selects one of four templates by language and by whether an
// instruction was given, and renders it. It returns the prompt and template key.
func Prompt(in Input) (string, string, error) {
	head := docparse.Head(in.Text, in.ChunkChars)
	hasInstruction := strings.TrimSpace(in.Instruction) != ""

	userInstruction := strings.TrimSpace(in.Instruction)
	if !hasInstruction {
		userInstruction = defaultInstructionEn
		if prompts.IsChinese(head) {
			userInstruction = defaultInstructionZh
		}
	}

	lang := prompts.DetectLanguage(in.Instruction, head)
	key := templateKey(lang, hasInstruction)

	chunks := docparse.Chunk(in.Text, in.ChunkChars)
	data := struct {
		FileInfo        string
		UserInstruction string
		Instruction     string
		Content         string
	}{
		FileInfo:        FileInfo(in.Filename, in.SizeBytes),
		UserInstruction: userInstruction,
		Instruction:     in.Instruction,
		Content:         docparse.JoinChunks(chunks, in.MaxChunks, chunkLabel),
	}

	rendered, err := prompts.Render(templates[key], data)
	if err != nil {
		return "", key, err
	}
	return rendered, key, nil
}

// FileInfo is the header line pair naming the file and its size.
func FileInfo(filename string, sizeBytes int) string {
	return fmt.Sprintf("%s\n文件大小: %sKB", filename, docparse.SizeKB(sizeBytes))
}

func chunkLabel(i int) string {
	return fmt.Sprintf("段 %d", i)
}

func templateKey(lang prompts.Language, hasInstruction bool) string {
	switch {
	case hasInstruction && lang == prompts.LangChinese:
		return InstructZhKey
	case hasInstruction:
		return InstructEnKey
	case lang == prompts.LangChinese:
		return SummarizeZhKey
	default:
		return SummarizeEnKey
	}
}

// RegisterPrompts registers the file task prompts.
func RegisterPrompts(r *prompts.Registry) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SummarizeZhKey,
		Text:        summarizeZh,
		Description: "File task without instruction, Chinese document",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         SummarizeEnKey,
		Text:        summarizeEn,
		Description: "File task without instruction, English document",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         InstructZhKey,
		Text:        instructZh,
		Description: "File task with a user instruction, answered in Chinese",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         InstructEnKey,
		Text:        instructEn,
		Description: "File task with a user instruction, answered in English",
	})
}
