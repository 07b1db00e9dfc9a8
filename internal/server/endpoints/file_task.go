package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/docparse"
	"github.com/alphadeepmind/llmserve/internal/engine"
	"github.com/alphadeepmind/llmserve/internal/prompts/filetask"
	"github.com/alphadeepmind/llmserve/internal/structured"
	"github.com/alphadeepmind/llmserve/internal/svcctx"
)

const (
	fileTaskEndpointName       = "file-task"
	defaultFileTaskTemperature = 0.3
	defaultFileTaskMaxTokens   = 1000

	// multipartMemory is the in-memory part of a parsed upload; the rest
	// spills to temporary files.
	multipartMemory = 8 << 20
)

func fileTaskSampling(maxTokens int) engine.SamplingParams {
	return engine.SamplingParams{
		Temperature:       0,
		MaxTokens:         maxTokens,
		TopK:              10,
		RepetitionPenalty: 1.03,
	}
}

// FileTaskEndpoint handles POST /file-task.
type FileTaskEndpoint struct{}

func (e *FileTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/file-task", e.handler
}

func (e *FileTaskEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Process a document
//	@Description	Extract text from a PDF, DOCX or TXT upload and answer an instruction about it.
//	@Description	Without an instruction the document is summarized. Unsupported formats
//	@Description	return a descriptive result without calling the model.
//	@Tags			documents
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Document (pdf, docx, txt)"
//	@Param			instruction	formData	string	false	"What to do with the document"
//	@Param			key			formData	string	true	"Shared API key"
//	@Param			temperature	query		number	false	"Accepted for compatibility (default 0.3)"
//	@Param			max_tokens	query		int		false	"Max tokens to generate (default 1000)"
//	@Success		200			{object}	ResultResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		413			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/file-task [post]
func (e *FileTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)
	cfg := svcctx.ConfigFrom(ctx)

	if cfg.Limits.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.Limits.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file too large, limit is %d bytes", cfg.Limits.MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	if !authorize(w, r, r.FormValue("key")) {
		return
	}

	temperature, err := floatParam(r, "temperature", defaultFileTaskTemperature)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxTokens, err := intParam(r, "max_tokens", defaultFileTaskMaxTokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !checkMaxTokens(w, maxTokens) {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("failed to read upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "文件處理失敗：failed to read upload")
		return
	}

	doc, err := docparse.Extract(header.Filename, data)
	if errors.Is(err, docparse.ErrUnsupportedFormat) {
		logger.Warn("unsupported document format",
			"filename", header.Filename,
			"format", docparse.FormatOf(header.Filename))
		writeJSON(w, http.StatusOK, ResultResponse{Result: msgUnsupported})
		return
	}
	if err != nil {
		logger.Error("document extraction failed",
			"filename", header.Filename,
			"size_bytes", len(data),
			"error", err)
		writeError(w, http.StatusInternalServerError, "文件處理失敗：document could not be parsed")
		return
	}

	prompt, key, err := filetask.Prompt(filetask.Input{
		Filename:    doc.Filename,
		SizeBytes:   doc.SizeBytes,
		Text:        doc.Text,
		Instruction: r.FormValue("instruction"),
		ChunkChars:  cfg.Limits.ChunkChars,
		MaxChunks:   cfg.Limits.MaxChunks,
	})
	if err != nil {
		logger.Error("failed to render file task prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "文件處理失敗：prompt rendering failed")
		return
	}

	res, call, err := generate(ctx, invocation{
		endpoint:    fileTaskEndpointName,
		promptKey:   key,
		prompt:      prompt,
		sampling:    fileTaskSampling(maxTokens),
		temperature: &temperature,
	})
	record(ctx, call)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "文件處理失敗："+summarize(err))
		return
	}

	logger.Info("file task succeeded",
		"request_id", call.RequestID,
		"filename", doc.Filename,
		"format", doc.Format,
		"prompt_key", key)
	writeJSON(w, http.StatusOK, ResultResponse{
		Result: structured.StripReasoning(res.Text, cfg.Engine.ReasoningDelimiter),
	})
}

func (e *FileTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	var instruction string
	var maxTokens int
	cmd := &cobra.Command{
		Use:   "file-task <path>",
		Short: "Summarize a document or answer an instruction about it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			fields := map[string]string{
				"key":         api.APIKey(),
				"instruction": instruction,
				"max_tokens":  strconv.Itoa(maxTokens),
			}
			client := api.NewClient(getServerURL())
			var resp ResultResponse
			if err := client.PostMultipart(ctx, "/file-task", fields, "file", filepath.Base(path), f, &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatTable {
				fmt.Println(resp.Result)
				return nil
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&instruction, "instruction", "i", "", "Instruction (default: summarize)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", defaultFileTaskMaxTokens, "Max tokens to generate")
	return cmd
}
