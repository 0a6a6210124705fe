package webapi

import (
	"context"
	"io"
	"net/http"
	"runtime"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/radubobirnac/vocallocal-sub003/internal/domain/audio"
	"github.com/radubobirnac/vocallocal-sub003/internal/domain/transcribe"
	"github.com/radubobirnac/vocallocal-sub003/internal/domain/usage"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/config"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
	httptransport "github.com/radubobirnac/vocallocal-sub003/internal/transport/http"
)

// maxUploadBytes bounds a single audio upload (150 MB covers a few
// hours of compressed speech).
const maxUploadBytes = 150 << 20

// Processor is the slice of the pipeline the HTTP layer drives.
type Processor interface {
	ProcessFile(ctx context.Context, req transcribe.FileRequest) (transcribe.JobOutcome, error)
	ProcessChunk(ctx context.Context, req transcribe.ChunkRequest) (string, error)
}

// UsageReader reports a user's consumption inside the rolling window.
type UsageReader interface {
	RollingUsage(ctx context.Context, userID, service string) (float64, error)
}

// Service is the HTTP transport for the transcription pipeline.
type Service struct {
	pipeline Processor
	usage    UsageReader
	config   *config.Config
	logger   *logging.Logger
}

// NewService creates the transcription API service.
func NewService(cfg *config.Config, pipeline Processor, usageReader UsageReader, logger *logging.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "config is required")
	}
	if pipeline == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "pipeline is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "logger is required")
	}

	return &Service{
		pipeline: pipeline,
		usage:    usageReader,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Register mounts the transcription routes onto the API group.
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	router.POST("/transcribe", s.handleTranscribe)
	router.POST("/transcribe_chunk", s.handleTranscribeChunk)
	router.GET("/usage", s.handleUsage)
	router.GET("/health", s.handleHealth)

	s.logger.InfoTag("HTTP", "transcription routes registered")
	return nil
}

type caller struct {
	userID   string
	plan     string
	testMode bool
}

func (s *Service) callerFrom(c *gin.Context) (caller, bool) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.PostForm("user_id")
	}
	if userID == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "missing user id", nil)
		return caller{}, false
	}

	plan := c.GetHeader("X-User-Plan")
	if plan == "" {
		plan = c.PostForm("plan")
	}
	if plan == "" {
		plan = usage.PlanFree
	}

	return caller{
		userID:   userID,
		plan:     plan,
		testMode: s.config.Provider.TestMode || c.PostForm("test_mode") == "true",
	}, true
}

func readUpload(c *gin.Context, field string) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "missing audio file", nil)
		return nil, "", false
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		httptransport.RespondError(c, http.StatusRequestEntityTooLarge, "audio file too large", nil)
		return nil, "", false
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "failed to read upload", nil)
		return nil, "", false
	}
	if len(data) > maxUploadBytes {
		httptransport.RespondError(c, http.StatusRequestEntityTooLarge, "audio file too large", nil)
		return nil, "", false
	}
	return data, header.Header.Get("Content-Type"), true
}

// handleTranscribe accepts a multipart audio upload and runs the whole
// pipeline on it. Partial results are still a success response; the
// failed chunk indices tell the client what is missing.
func (s *Service) handleTranscribe(c *gin.Context) {
	who, ok := s.callerFrom(c)
	if !ok {
		return
	}
	data, contentType, ok := readUpload(c, "file")
	if !ok {
		return
	}

	outcome, err := s.pipeline.ProcessFile(c.Request.Context(), transcribe.FileRequest{
		UserID:   who.userID,
		Plan:     who.plan,
		Asset:    &audio.Asset{Data: data, ContentType: contentType},
		Language: c.PostForm("language"),
		Model:    c.PostForm("model"),
		TestMode: who.testMode,
	})
	if err != nil {
		s.logger.WarnTag("HTTP", "transcription for %s failed: %v", who.userID, err)
		httptransport.RespondDomainError(c, err)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"text":           outcome.Text(),
		"status":         outcome.Status,
		"chunks":         len(outcome.OrderedText),
		"failed_indices": outcome.FailedIndices,
		"test_mode":      who.testMode,
	}, "")
}

// handleTranscribeChunk transcribes one client-side chunk. Browsers that
// record in segments upload each piece here and stitch locally.
func (s *Service) handleTranscribeChunk(c *gin.Context) {
	who, ok := s.callerFrom(c)
	if !ok {
		return
	}
	data, _, ok := readUpload(c, "file")
	if !ok {
		return
	}

	chunkIndex, _ := strconv.Atoi(c.PostForm("chunk_index"))
	text, err := s.pipeline.ProcessChunk(c.Request.Context(), transcribe.ChunkRequest{
		UserID:     who.userID,
		Plan:       who.plan,
		Audio:      data,
		Language:   c.PostForm("language"),
		Model:      c.PostForm("model"),
		ChunkIndex: chunkIndex,
		TestMode:   who.testMode,
	})
	if err != nil {
		s.logger.WarnTag("HTTP", "chunk transcription for %s failed: %v", who.userID, err)
		httptransport.RespondDomainError(c, err)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"text":        text,
		"chunk_index": chunkIndex,
		"status":      transcribe.StatusSuccess,
	}, "")
}

// handleUsage reports consumption inside the current rolling window.
func (s *Service) handleUsage(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "missing user id", nil)
		return
	}
	if s.usage == nil {
		httptransport.RespondError(c, http.StatusNotImplemented, "usage reporting disabled", nil)
		return
	}

	used, err := s.usage.RollingUsage(c.Request.Context(), userID, usage.ServiceTranscription)
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"user_id":      userID,
		"used_credits": used,
	}, "")
}

// handleHealth reports process and host vitals.
func (s *Service) handleHealth(c *gin.Context) {
	data := gin.H{
		"status":     "ok",
		"goroutines": runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		data["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		data["cpu_percent"] = percents[0]
	}

	httptransport.RespondSuccess(c, http.StatusOK, data, "")
}
