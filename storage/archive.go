package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"pgs-curation/config"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Archive legt importierte Templates samt Report im S3-Bucket ab.
type Archive struct {
	Client  *s3.Client
	Bucket  string
	BaseURL string
	Prefix  string
	Logger  *zap.Logger
}

// NewArchive erstellt das Archiv aus der Konfiguration.
func NewArchive(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Archive, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Archive{Client: client, Bucket: cfg.ArchiveS3Bucket, BaseURL: cfg.ArchiveS3URL, Prefix: "imports", Logger: logger}, nil
}

// ArchiveStudy lädt <prefix>/<batch>/<study>.xlsx und <study>.report.json hoch und liefert den Link zum Template.
func (a *Archive) ArchiveStudy(ctx context.Context, batchID, study string, source, reportJSON []byte) (string, error) {
	base := path.Join(a.Prefix, batchID, safeName(study))
	key := base + ".xlsx"
	if err := UploadFile(ctx, a.Client, a.Bucket, key, xlsxContentType, source); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if len(reportJSON) > 0 {
		if err := UploadFile(ctx, a.Client, a.Bucket, base+".report.json", "application/json", reportJSON); err != nil {
			return "", fmt.Errorf("upload %s.report.json: %w", base, err)
		}
	}
	link := Link(a.BaseURL, a.Bucket, key)
	if a.Logger != nil {
		a.Logger.Info("Template archiviert", zap.String("study", study), zap.String("link", link))
	}
	return link, nil
}

// safeName ersetzt Pfadtrenner und Leerzeichen im Studiennamen.
func safeName(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(strings.TrimSpace(s))
}
