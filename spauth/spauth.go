package spauth

import (
	"fmt"
	"os"

	"github.com/koltyakov/gosip"
	"github.com/koltyakov/gosip/auth/azurecert"
)

// Config holds app-only certificate credentials for the content service.
// The same tenant/client pair is reused by the directory client's token
// provider; only the SharePoint site binding lives here.
type Config struct {
	TenantID     string
	ClientID     string
	CertPath     string
	CertPassword string
}

// FromEnv reads credentials from the environment.
func FromEnv() (Config, error) {
	cfg := Config{
		TenantID:     os.Getenv("SP_TENANT_ID"),
		ClientID:     os.Getenv("SP_CLIENT_ID"),
		CertPath:     os.Getenv("SP_CERT_PATH"),
		CertPassword: os.Getenv("SP_CERT_PASSWORD"),
	}

	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.CertPath == "" {
		return cfg, fmt.Errorf("missing required configuration: SP_TENANT_ID, SP_CLIENT_ID, SP_CERT_PATH")
	}
	return cfg, nil
}

// NewClient builds a gosip client bound to one site URL. The classifier and
// walker connect to many site URLs during a batch, so clients are created
// per site rather than once per process.
func NewClient(cfg Config, siteURL string) (*gosip.SPClient, error) {
	if siteURL == "" {
		return nil, fmt.Errorf("site URL cannot be empty")
	}
	ac := &azurecert.AuthCnfg{
		SiteURL:  siteURL,
		TenantID: cfg.TenantID,
		ClientID: cfg.ClientID,
		CertPath: cfg.CertPath,
		CertPass: cfg.CertPassword,
	}
	return &gosip.SPClient{AuthCnfg: ac}, nil
}
