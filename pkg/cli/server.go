package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mchmarny/walletscore/pkg/pipeline"
	"github.com/mchmarny/walletscore/pkg/score"
	"github.com/mchmarny/walletscore/pkg/tx"
	"github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverMaxBodyBytes        = 32 << 20
	serverPortDefault         = 8080

	flagPort = "port"
)

func serverCmd(a *appConfig) *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start local HTTP scoring server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagPort,
				Usage: "Port on which the server will listen",
				Value: serverPortDefault,
			},
			&cli.StringFlag{
				Name:  flagScaler,
				Usage: "Path to the scaler artifact, enables /predict",
			},
			&cli.StringFlag{
				Name:  flagModel,
				Usage: "Path to the regressor artifact, enables /predict",
			},
		},
		Action: a.cmdStartServer,
	}
}

func (a *appConfig) cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	h, err := a.newScoreHandler(cmd.String(flagScaler), cmd.String(flagModel))
	if err != nil {
		return err
	}

	address := fmt.Sprintf("127.0.0.1:%d", int(cmd.Int(flagPort)))
	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(h),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server started", "address", "http://"+address, "model", h.model != nil)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	return nil
}

// scoreHandler holds independent heuristic and model pipelines. A missing
// model only disables /predict.
type scoreHandler struct {
	heuristic *pipeline.Pipeline
	model     *pipeline.Pipeline
}

func (a *appConfig) newScoreHandler(scalerPath, modelPath string) (*scoreHandler, error) {
	heur, err := a.newPipeline(score.NewHeuristic(a.Config.Heuristic))
	if err != nil {
		return nil, err
	}
	h := &scoreHandler{heuristic: heur}

	if scalerPath == "" && modelPath == "" {
		return h, nil
	}
	if scalerPath == "" || modelPath == "" {
		return nil, errors.New("both scaler and model are required to enable /predict")
	}

	m, err := score.LoadModel(scalerPath, modelPath)
	if err != nil {
		var mue *score.ModelUnavailableError
		if errors.As(err, &mue) {
			slog.Error("model disabled, /predict unavailable", "path", mue.Path, "error", mue.Err)
			return h, nil
		}
		return nil, err
	}
	if h.model, err = a.newPipeline(m); err != nil {
		return nil, err
	}
	return h, nil
}

func makeRouter(h *scoreHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /score", h.score)
	mux.HandleFunc("POST /predict", h.predict)
	return mux
}

func (h *scoreHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"model":  h.model != nil,
	})
}

func (h *scoreHandler) score(w http.ResponseWriter, r *http.Request) {
	res, ok := run(w, r, h.heuristic)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := res.Table.WriteScoreMap(w); err != nil {
		slog.Error("error writing score map", "error", err)
	}
}

func (h *scoreHandler) predict(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("model not loaded"))
		return
	}
	res, ok := run(w, r, h.model)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := res.Table.WriteJSON(w); err != nil {
		slog.Error("error writing score table", "error", err)
	}
}

func run(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) (*pipeline.Result, bool) {
	raw, err := tx.Decode(http.MaxBytesReader(w, r.Body, serverMaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}

	res, err := p.Run(r.Context(), raw)
	if err != nil {
		var se *pipeline.StageError
		if errors.As(err, &se) && se.Stage == pipeline.StageNormalize {
			writeError(w, http.StatusBadRequest, err)
			return nil, false
		}
		slog.Error("error scoring request", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}

	return res, true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}
