package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/common"
)

const (
	indexFile = "index.json"

	maxFiles = 8
)

var (
	ErrInvalidProofID = errors.New("invalid proof id")
	ErrProofNotFound  = errors.New("proof not found")
)

type ReceiverService struct {
	TmpDir string

	logger *slog.Logger
}

func New(tmpDir string, logger *slog.Logger) *ReceiverService {
	return &ReceiverService{
		TmpDir: tmpDir,
		logger: logger,
	}
}

func NewReceiverService(i do.Injector) (*ReceiverService, error) {
	tmpDir := do.MustInvokeNamed[string](i, "tmp-dir")

	result := New(tmpDir, common.Logger(i).With("service", "receiver"))

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		receiverGroup := apiGroup.Group("/receiver")

		receiverGroup.POST("/proofs", result.Upload)
		receiverGroup.GET("/proofs/:id", result.GetProof)
	})

	return result, nil
}

func (s *ReceiverService) proofDir(proofID string) (string, error) {
	parsed, err := uuid.Parse(proofID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidProofID, proofID)
	}

	return filepath.Join(s.TmpDir, parsed.String()), nil
}

func (s *ReceiverService) Proof(_ context.Context, proofID string) (*ProofIndex, error) {
	dir, err := s.proofDir(proofID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrProofNotFound, proofID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read proof index: %w", err)
	}

	var index ProofIndex

	err = json.Unmarshal(data, &index)
	if err != nil {
		return nil, fmt.Errorf("failed to decode proof index: %w", err)
	}

	return &index, nil
}

func saveFile(file *multipart.FileHeader, dstPath string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	//nolint:gosec
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(dst, src)
	if err != nil {
		_ = dst.Close()

		return fmt.Errorf("failed to write file: %w", err)
	}

	err = dst.Close()
	if err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}

//nolint:cyclop,funlen
func (s *ReceiverService) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to parse multipart form")
	}

	challengeID := c.FormValue("challenge_id")
	wallet := c.FormValue("wallet")

	if challengeID == "" || wallet == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "challenge_id and wallet are required")
	}

	files := form.File["files"]
	if len(files) == 0 || len(files) > maxFiles {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("between 1 and %d files are required", maxFiles))
	}

	_proofID, err := uuid.NewV7()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate UUID")
	}

	proofID := _proofID.String()
	proofDir := filepath.Join(s.TmpDir, proofID)

	err = os.MkdirAll(proofDir, 0700)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create proof directory")
	}

	// an upload is either complete or gone
	stored := false
	defer func() {
		if !stored {
			_ = os.RemoveAll(proofDir)
		}
	}()

	index := ProofIndex{
		ProofID:     proofID,
		ChallengeID: challengeID,
		Wallet:      wallet,
		Timestamp:   time.Now(),
		Files:       make([]string, 0, len(files)),
	}

	for _, file := range files {
		name := filepath.Base(file.Filename)
		if name == indexFile || name == "." || name == string(filepath.Separator) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid file name")
		}

		err = saveFile(file, filepath.Join(proofDir, name))
		if err != nil {
			s.logger.Error("failed to store proof file", "proof", proofID, "error", err)

			return echo.NewHTTPError(http.StatusInternalServerError, "failed to store file")
		}

		index.Files = append(index.Files, name)
	}

	indexData, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to marshal index")
	}

	err = os.WriteFile(filepath.Join(proofDir, indexFile), indexData, 0600)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to write index file")
	}

	stored = true

	s.logger.Info("proof stored", "proof", proofID, "challenge", challengeID, "files", len(index.Files))

	//nolint:wrapcheck
	return c.JSON(http.StatusAccepted, index)
}

func (s *ReceiverService) GetProof(c echo.Context) error {
	index, err := s.Proof(c.Request().Context(), c.Param("id"))

	switch {
	case errors.Is(err, ErrInvalidProofID):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid proof id")
	case errors.Is(err, ErrProofNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "proof not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read proof")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, index)
}
