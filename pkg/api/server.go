// Package api provides the REST API server for xm2live
package api

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/xm2live/xm2live/pkg/convert"
	"github.com/xm2live/xm2live/pkg/live"
	"github.com/xm2live/xm2live/pkg/midifile"
	"github.com/xm2live/xm2live/pkg/module"
)

// @title xm2live API
// @version 1.0
// @description API for converting XM and MOD tracker modules to Ableton Live projects
// @host localhost:8080
// @BasePath /api/v1

// Server wires the conversion pipeline behind HTTP handlers.
type Server struct {
	log *zap.Logger
}

// StartServer starts the API server on the specified port.
func StartServer(port int, log *zap.Logger) error {
	return NewRouter(log).Run(fmt.Sprintf(":%d", port))
}

// NewRouter builds the gin engine with every route attached.
func NewRouter(log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{log: log}

	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.POST("/convert", s.handleConvert)
		v1.POST("/convert/midi", s.handleConvertMIDI)
		v1.POST("/inspect", s.handleInspect)
		v1.GET("/formats", listFormats)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "xm2live",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns the supported input formats and output targets
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"inputs":  []string{"xm", "mod"},
		"outputs": []string{"als", "mid"},
	})
}

func configFromQuery(c *gin.Context) convert.Config {
	return convert.Config{
		PanAutomation:      c.DefaultQuery("pan_automation", "true") == "true",
		SampleOffset:       c.DefaultQuery("sample_offset", "true") == "true",
		EnvelopeConversion: c.DefaultQuery("envelopes", "true") == "true",
		MergeTracks:        c.Query("merge") == "true",
	}
}

func readUpload(c *gin.Context) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, "", false
	}
	return data, header.Filename, true
}

// conversionLogger assigns the request a conversion id, echoes it in
// the response header so clients can quote it back, and returns a
// logger carrying it on every line.
func (s *Server) conversionLogger(c *gin.Context, filename string) (string, *zap.Logger) {
	id := uuid.NewString()
	c.Header("X-Conversion-Id", id)
	return id, s.log.With(zap.String("conversion_id", id), zap.String("file", filename))
}

func conversionStatus(err error) int {
	if errors.Is(err, module.ErrUnsupportedFormat) {
		return http.StatusUnsupportedMediaType
	}
	var corrupt *module.CorruptError
	if errors.As(err, &corrupt) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// handleConvert godoc
// @Summary Convert a tracker module to an Ableton Live project
// @Description Upload an .xm or .mod file and receive a zip with the .als project and extracted samples
// @Tags convert
// @Accept multipart/form-data
// @Produce application/zip
// @Param file formData file true "XM or MOD module to convert"
// @Param merge query bool false "Merge channels into one track per instrument"
// @Param pan_automation query bool false "Emit pan automation (default true)"
// @Param sample_offset query bool false "Emit sample start automation (default true)"
// @Param envelopes query bool false "Convert volume envelopes to ADSR (default true)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert [post]
func (s *Server) handleConvert(c *gin.Context) {
	data, filename, ok := readUpload(c)
	if !ok {
		return
	}
	cfg := configFromQuery(c)

	id, log := s.conversionLogger(c, filename)

	project, samples, err := convert.Convert(data, cfg)
	if err != nil {
		log.Warn("conversion failed", zap.Error(err))
		c.JSON(conversionStatus(err), gin.H{"error": err.Error(), "conversion_id": id})
		return
	}

	base := convert.BaseName(filename)
	archive, err := projectZip(project, samples, base)
	if err != nil {
		log.Error("project packaging failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "conversion_id": id})
		return
	}

	log.Info("converted module",
		zap.Int("tracks", len(project.Tracks)),
		zap.Int("notes", project.NoteCount()),
		zap.Int("samples", len(samples)))

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_Ableton_Project.zip", base))
	c.Data(http.StatusOK, "application/zip", archive)
}

// handleConvertMIDI godoc
// @Summary Convert a tracker module to a standard MIDI file
// @Description Upload an .xm or .mod file and receive a type-1 MIDI file with the note data
// @Tags convert
// @Accept multipart/form-data
// @Produce audio/midi
// @Param file formData file true "XM or MOD module to convert"
// @Param merge query bool false "Merge channels into one track per instrument"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert/midi [post]
func (s *Server) handleConvertMIDI(c *gin.Context) {
	data, filename, ok := readUpload(c)
	if !ok {
		return
	}
	cfg := configFromQuery(c)

	id, log := s.conversionLogger(c, filename)

	project, _, err := convert.Convert(data, cfg)
	if err != nil {
		log.Warn("conversion failed", zap.Error(err))
		c.JSON(conversionStatus(err), gin.H{"error": err.Error(), "conversion_id": id})
		return
	}

	out, err := midifile.Export(project)
	if err != nil {
		log.Error("midi export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "conversion_id": id})
		return
	}

	log.Info("exported midi", zap.Int("tracks", len(project.Tracks)), zap.Int("notes", project.NoteCount()))

	outputName := convert.BaseName(filename) + ".mid"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", outputName))
	c.Data(http.StatusOK, "audio/midi", out)
}

// handleInspect godoc
// @Summary Inspect a tracker module
// @Description Upload an .xm or .mod file and receive its parsed metadata as JSON
// @Tags info
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "XM or MOD module to inspect"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Router /api/v1/inspect [post]
func (s *Server) handleInspect(c *gin.Context) {
	data, filename, ok := readUpload(c)
	if !ok {
		return
	}

	m, err := module.Parse(data)
	if err != nil {
		c.JSON(conversionStatus(err), gin.H{"error": err.Error()})
		return
	}

	instruments := make([]gin.H, 0, len(m.Instruments))
	for _, ins := range m.Instruments {
		if len(ins.Samples) == 0 && ins.Name == "" {
			continue
		}
		instruments = append(instruments, gin.H{
			"id":      ins.ID,
			"name":    strings.TrimSpace(ins.Name),
			"samples": len(ins.Samples),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"file":        filepath.Base(filename),
		"format":      m.Format.String(),
		"title":       m.Title,
		"channels":    m.Channels,
		"speed":       m.Speed,
		"bpm":         m.BPM,
		"patterns":    len(m.Patterns),
		"orderLength": len(m.Order),
		"instruments": instruments,
	})
}

// projectZip packages the .als and its sample files the way the
// project would sit on disk, under <base>_Ableton_Project/.
func projectZip(project *live.Project, samples []convert.SampleFile, base string) ([]byte, error) {
	als, err := live.Serialize(project)
	if err != nil {
		return nil, err
	}

	root := base + "_Ableton_Project/"
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create(root + base + ".als")
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(als); err != nil {
		return nil, err
	}

	for i := range samples {
		w, err := zw.Create(root + "Samples/" + samples[i].FileName)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(samples[i].Data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
