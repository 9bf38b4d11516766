package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/kaipee/csc-311-downloader/internal/models"
)

var (
	// ErrNoResources is returned when a package lists no resources.
	ErrNoResources = errors.New("package has no resources")
	// ErrNoDatastoreFlag is returned when the selected resource lacks datastore_active.
	ErrNoDatastoreFlag = errors.New("resource has no datastore_active flag")
)

// ResourceSelector picks the resource to download from a package.
type ResourceSelector func(resources []models.Resource) (models.Resource, error)

// FirstResource selects the resource at index 0, whatever else the package holds.
func FirstResource(resources []models.Resource) (models.Resource, error) {
	if len(resources) == 0 {
		return models.Resource{}, ErrNoResources
	}
	return resources[0], nil
}

// Download is a resolved download target.
type Download struct {
	PackageID string
	Resource  models.Resource
	URL       string
}

// CatalogClient calls the action API of a CKAN catalog.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	selector   ResourceSelector
}

// NewCatalogClient creates a client for the catalog at baseURL.
// A nil httpClient uses http.DefaultClient; a nil selector uses FirstResource.
func NewCatalogClient(baseURL string, httpClient *http.Client, selector ResourceSelector) *CatalogClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if selector == nil {
		selector = FirstResource
	}
	return &CatalogClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		selector:   selector,
	}
}

// GetPackage calls package_show.
func (c *CatalogClient) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	var pkg models.Package
	if err := c.action(ctx, "package_show", id, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetResource calls resource_show.
func (c *CatalogClient) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	var res models.Resource
	if err := c.action(ctx, "resource_show", id, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResolveDownload finds the download URL of the selected resource of a package.
// Resources not active in the datastore are looked up with resource_show.
func (c *CatalogClient) ResolveDownload(ctx context.Context, packageID string) (*Download, error) {
	logCtx := slog.With("packageId", packageID)

	pkg, err := c.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	resource, err := c.selector(pkg.Resources)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", packageID, err)
	}
	logCtx = logCtx.With("resourceId", resource.ID)
	if resource.DatastoreActive == nil {
		return nil, fmt.Errorf("resource %s of package %s: %w", resource.ID, packageID, ErrNoDatastoreFlag)
	}
	logCtx.Info("Selected resource.", "resourceName", resource.Name, "resourceCount", len(pkg.Resources), "datastoreActive", *resource.DatastoreActive)

	if !*resource.DatastoreActive {
		meta, err := c.GetResource(ctx, resource.ID)
		if err != nil {
			return nil, err
		}
		resource = *meta
	}
	if resource.URL == "" {
		return nil, fmt.Errorf("resource %s of package %s has no url", resource.ID, packageID)
	}

	logCtx.Info("Resolved download URL.", "url", resource.URL)
	return &Download{PackageID: packageID, Resource: resource, URL: resource.URL}, nil
}

// action performs GET {base}/api/3/action/{name}?id={id} and decodes the result into out.
func (c *CatalogClient) action(ctx context.Context, name, id string, out any) error {
	endpoint := fmt.Sprintf("%s/api/3/action/%s?%s", c.baseURL, name, url.Values{"id": {id}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", name, id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", name, id, err)
	}

	var envelope models.ActionResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s %s: unexpected status %s", name, id, resp.Status)
		}
		return fmt.Errorf("%s %s: malformed response: %w", name, id, err)
	}
	if !envelope.Success || resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if envelope.Error != nil {
			msg = fmt.Sprintf("%s (%s)", envelope.Error.Message, envelope.Error.Type)
		}
		return fmt.Errorf("%s %s failed: %s", name, id, msg)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return fmt.Errorf("%s %s: response has no result", name, id)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%s %s: malformed result: %w", name, id, err)
	}
	return nil
}
