package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveFetcher downloads files through the Google Drive API, for datasets
// that are not shared publicly.
type DriveFetcher struct {
	service *drive.Service
}

// NewDriveFetcher builds a Drive client from a credentials file. A service
// account key is used directly; an OAuth client file needs a token saved at
// tokenPath by an earlier consent. An empty credentialsPath falls back to
// Application Default Credentials.
func NewDriveFetcher(ctx context.Context, credentialsPath, tokenPath string) (*DriveFetcher, error) {
	opt, err := driveClientOption(ctx, credentialsPath, tokenPath)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive client: %w", err)
	}
	return &DriveFetcher{service: srv}, nil
}

func driveClientOption(ctx context.Context, credentialsPath, tokenPath string) (option.ClientOption, error) {
	if credentialsPath == "" {
		creds, err := google.FindDefaultCredentials(ctx, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("unable to find default credentials: %w", err)
		}
		return option.WithCredentials(creds), nil
	}

	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	var kind struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(b, &kind)

	if kind.Type == "service_account" {
		creds, err := google.CredentialsFromJSON(ctx, b, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
		}
		return option.WithCredentials(creds), nil
	}

	config, err := google.ConfigFromJSON(b, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("no stored OAuth token at %q: %w", tokenPath, err)
	}
	return option.WithHTTPClient(config.Client(ctx, tok)), nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func (d *DriveFetcher) Fetch(ctx context.Context, id string, w io.Writer) error {
	resp, err := d.service.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("unable to download Drive file %s: %w", id, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read Drive file %s: %w", id, err)
	}
	return nil
}
