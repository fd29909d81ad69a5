package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveStorage stores artifacts in a Google Drive folder. Object paths are
// flattened into file names inside one application folder; Drive's web
// content link serves as the read URL.
type DriveStorage struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveStorage builds a Drive-backed object store using OAuth
// credentials and a cached token file.
func NewDriveStorage(credentialsFile, tokenFile, folderName string) (*DriveStorage, error) {
	ctx := context.Background()

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	client, err := getClient(config, tokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	ds := &DriveStorage{service: srv, folderName: folderName}
	if err := ds.ensureFolder(); err != nil {
		return nil, err
	}
	return ds, nil
}

// getClient builds an HTTP client from a cached token file.
func getClient(config *oauth2.Config, tokenFile string) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("no cached Drive token at %s: %w (run the auth flow first)", tokenFile, err)
	}
	return config.Client(context.Background(), tok), nil
}

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

// ensureFolder finds or creates the application folder.
func (ds *DriveStorage) ensureFolder() error {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		ds.folderName)

	r, err := ds.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Do()
	if err != nil {
		return fmt.Errorf("unable to search for folder: %w", err)
	}

	if len(r.Files) > 0 {
		ds.folderID = r.Files[0].Id
		return nil
	}

	folder, err := ds.service.Files.Create(&drive.File{
		Name:     ds.folderName,
		MimeType: "application/vnd.google-apps.folder",
	}).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("unable to create folder: %w", err)
	}
	ds.folderID = folder.Id
	return nil
}

// Put uploads the object and returns its web content link.
func (ds *DriveStorage) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	name := flattenPath(path)

	// Replace any previous object at the same path so retries do not
	// accumulate duplicates.
	if id, err := ds.findFile(name); err == nil && id != "" {
		if err := ds.service.Files.Delete(id).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("unable to replace existing object: %w", err)
		}
	}

	file, err := ds.service.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{ds.folderID},
	}).Media(bytes.NewReader(data)).Fields("id, webContentLink").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to upload object: %w", err)
	}
	if file.WebContentLink != "" {
		return file.WebContentLink, nil
	}
	return ds.readURLByID(ctx, file.Id)
}

// ReadURL returns the web content link of an existing object.
func (ds *DriveStorage) ReadURL(ctx context.Context, path string) (string, error) {
	id, err := ds.findFile(flattenPath(path))
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("object not found: %s", path)
	}
	return ds.readURLByID(ctx, id)
}

// Exists checks for an object by flattened name.
func (ds *DriveStorage) Exists(_ context.Context, path string) (bool, error) {
	id, err := ds.findFile(flattenPath(path))
	if err != nil {
		return false, err
	}
	return id != "", nil
}

func (ds *DriveStorage) readURLByID(ctx context.Context, id string) (string, error) {
	file, err := ds.service.Files.Get(id).Fields("webContentLink").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to fetch object link: %w", err)
	}
	return file.WebContentLink, nil
}

func (ds *DriveStorage) findFile(name string) (string, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false", name, ds.folderID)
	r, err := ds.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for object: %w", err)
	}
	if len(r.Files) == 0 {
		return "", nil
	}
	return r.Files[0].Id, nil
}

func flattenPath(path string) string {
	return strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", "__")
}
