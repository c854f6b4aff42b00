package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/algovids/algovids-agent/internal/export"
	"github.com/algovids/algovids-agent/internal/render"
	"github.com/algovids/algovids-agent/internal/translate"
)

const maxRequestBody = 1 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSMiddleware())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(CredentialMiddleware(cfg.DefaultCredential, cfg.Logger))

		r.Post("/generate-video", generateVideoHandler(cfg))
		if cfg.Translator != nil {
			r.Post("/translate-hindi", translateHandler(cfg, translate.DefaultLanguage))
		}
	})

	r.Get("/renders", listRendersHandler(cfg))
	r.Get("/renders/{id}", getRenderHandler(cfg))
	r.Get("/renders/{id}/video", renderVideoHandler(cfg))
	r.Get("/renders/{id}/plan.edl", renderEDLHandler(cfg))
	r.Delete("/renders/{id}", deleteRenderHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		if cfg.Probe != nil {
			avail := cfg.Probe.Get(r.Context())
			resp.FFmpeg = &avail
			if !avail.Available {
				resp.Status = "degraded"
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func generateVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateVideoRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		res, err := cfg.Renders.Render(r.Context(), render.Request{
			Assets:     req.Assets(),
			Credential: CredentialFrom(r.Context()),
		})
		if err != nil {
			writeRenderError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, GenerateVideoResponse{
			Message:   "Video Generated Successfully",
			RenderID:  res.ID,
			VideoPath: res.OutputPath,
			Mode:      res.Mode,
			Segments:  len(res.Plan),
		})
	}
}

func writeRenderError(w http.ResponseWriter, err error) {
	var pe *render.ProcessError
	switch {
	case errors.Is(err, render.ErrMissingCredential):
		WriteError(w, http.StatusBadRequest, "Gemini API key not provided", "MISSING_CREDENTIAL")
	case errors.Is(err, render.ErrMissingInput):
		WriteError(w, http.StatusBadRequest, err.Error(), "MISSING_INPUT")
	case errors.As(err, &pe):
		WriteError(w, http.StatusInternalServerError, "FFmpeg error: "+pe.Stderr, "RENDER_FAILED")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func translateHandler(cfg ServerConfig, language string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TranslateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		res, err := cfg.Translator.Translate(r.Context(), translate.Request{
			Text:       req.Text,
			Language:   language,
			Credential: CredentialFrom(r.Context()),
		})
		switch {
		case errors.Is(err, translate.ErrEmptyText):
			WriteError(w, http.StatusBadRequest, "Text is required", "MISSING_INPUT")
			return
		case errors.Is(err, translate.ErrMissingCredential):
			WriteError(w, http.StatusBadRequest, "Gemini API key not provided", "MISSING_CREDENTIAL")
			return
		case err != nil:
			WriteError(w, http.StatusInternalServerError, "Translation failed: "+err.Error(), "TRANSLATION_FAILED")
			return
		}

		WriteJSON(w, http.StatusOK, TranslateResponse{
			OriginalText:   res.Original,
			TranslatedText: res.Translated,
			Language:       res.Language,
		})
	}
}

func listRendersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500", "BAD_REQUEST")
				return
			}
			limit = n
		}

		records, err := cfg.Renders.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list renders", "INTERNAL_ERROR")
			return
		}

		resp := RendersResponse{Renders: make([]RenderResponse, len(records))}
		for i, rec := range records {
			resp.Renders[i] = RenderToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// lookupRender writes the error response itself and returns nil when the
// render cannot be served.
func lookupRender(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *render.Record {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "render id required", "BAD_REQUEST")
		return nil
	}
	rec, err := cfg.Renders.Get(r.Context(), id)
	if errors.Is(err, render.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
		return nil
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil
	}
	return rec
}

func getRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rec := lookupRender(cfg, w, r); rec != nil {
			WriteJSON(w, http.StatusOK, RenderToResponse(rec))
		}
	}
}

func renderVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := lookupRender(cfg, w, r)
		if rec == nil {
			return
		}
		if rec.Status != render.StatusCompleted || rec.OutputPath == "" {
			WriteError(w, http.StatusConflict, "render has no output", "NOT_READY")
			return
		}

		f, err := os.Open(rec.OutputPath)
		if err != nil {
			if os.IsNotExist(err) {
				WriteError(w, http.StatusNotFound, "video file missing", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to open video", "INTERNAL_ERROR")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to stat video", "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `inline; filename="`+filepath.Base(rec.OutputPath)+`"`)
		http.ServeContent(w, r, filepath.Base(rec.OutputPath), info.ModTime(), f)
	}
}

func renderEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := lookupRender(cfg, w, r)
		if rec == nil {
			return
		}
		if len(rec.Plan) == 0 {
			WriteError(w, http.StatusNotFound, "render has no segment plan", "NO_PLAN")
			return
		}

		edl := export.PlanEDL(rec.Plan, rec.Assets.Video, "algovids "+rec.ID, export.DefaultFrameRate)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(rec.ID)+`.edl"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

func deleteRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := cfg.Renders.Delete(r.Context(), id)
		switch {
		case errors.Is(err, render.ErrNotFound):
			WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
		case errors.Is(err, render.ErrRenderActive):
			WriteError(w, http.StatusConflict, err.Error(), "RENDER_ACTIVE")
		case err != nil:
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
