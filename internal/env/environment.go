// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

const taskRootEnvKey = "LAMBDA_TASK_ROOT"

const (
	DefaultParameterPrefix = "/teslu"
	DefaultAuthURL         = "https://auth.tesla.com/oauth2/v3"
	DefaultRegion          = "na"
)

var fleetHosts = map[string]string{
	"na": "https://fleet-api.prd.na.vn.cloud.tesla.com",
	"eu": "https://fleet-api.prd.eu.vn.cloud.tesla.com",
	"cn": "https://fleet-api.prd.cn.vn.cloud.tesla.cn",
}

// Options holds the handler configuration. Every option can be set either on
// the command line or through its environment variable; Lambda only ever
// uses the latter.
type Options struct {
	LogLevel        string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level"`
	ParameterPrefix string `long:"parameter-prefix" env:"TESLU_PARAMETER_PREFIX" default:"/teslu" description:"SSM parameter path holding secrets and tokens"`
	Region          string `long:"region" env:"TESLA_REGION" default:"na" choice:"na" choice:"eu" choice:"cn" description:"Fleet API region"`
	FleetURL        string `long:"fleet-url" env:"TESLA_FLEET_API_URL" description:"Fleet API base URL, overrides --region (e.g. a command signing proxy)"`
	AuthURL         string `long:"auth-url" env:"TESLA_AUTH_URL" default:"https://auth.tesla.com/oauth2/v3" description:"OAuth2 base URL"`

	WakeRounds       int           `long:"wake-rounds" env:"TESLU_WAKE_ROUNDS" default:"5" description:"wake_up attempts before giving up, 0 disables waking"`
	WakePollInterval time.Duration `long:"wake-poll-interval" env:"TESLU_WAKE_POLL_INTERVAL" default:"5s" description:"vehicle state poll interval while waking"`
	WakeTimeout      time.Duration `long:"wake-timeout" env:"TESLU_WAKE_TIMEOUT" default:"65s" description:"time to wait for the vehicle after each wake_up"`
	RefreshLockTTL   time.Duration `long:"refresh-lock-ttl" env:"TESLU_REFRESH_LOCK_TTL" default:"30s" description:"lease on the token refresh lock"`
	HTTPTimeout      time.Duration `long:"http-timeout" env:"TESLU_HTTP_TIMEOUT" default:"30s" description:"timeout of a single Fleet or auth API call"`
}

// Parse reads options from args and the environment. Unknown arguments are
// returned untouched.
func Parse(args []string) (*Options, []string, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.IgnoreUnknown)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	return &opts, rest, nil
}

func (o *Options) Validate() error {
	if !strings.HasPrefix(o.ParameterPrefix, "/") {
		return fmt.Errorf("parameter prefix %q must start with /", o.ParameterPrefix)
	}
	if o.WakeRounds < 0 {
		return fmt.Errorf("wake rounds must not be negative, got %d", o.WakeRounds)
	}
	if o.WakeRounds > 0 && (o.WakePollInterval <= 0 || o.WakeTimeout <= 0) {
		return fmt.Errorf("wake poll interval and timeout must be positive")
	}
	if o.FleetURL == "" {
		if _, ok := fleetHosts[o.Region]; !ok {
			return fmt.Errorf("unknown Fleet API region %q", o.Region)
		}
	}
	return nil
}

// FleetBaseURL returns the explicit Fleet API URL if one is configured,
// otherwise the regional endpoint.
func (o *Options) FleetBaseURL() string {
	if o.FleetURL != "" {
		return strings.TrimSuffix(o.FleetURL, "/")
	}
	return fleetHosts[o.Region]
}

// TokenURL is the OAuth2 token endpoint under AuthURL.
func (o *Options) TokenURL() string {
	return strings.TrimSuffix(o.AuthURL, "/") + "/token"
}

// AuthorizeURL is the OAuth2 authorization endpoint under AuthURL.
func (o *Options) AuthorizeURL() string {
	return strings.TrimSuffix(o.AuthURL, "/") + "/authorize"
}

// IsLambda reports whether the process runs inside the Lambda execution
// environment.
func IsLambda() bool {
	_, ok := os.LookupEnv(taskRootEnvKey)
	return ok
}

// TempDir is the directory for short lived files. /tmp is the only writable
// path inside Lambda.
func TempDir() string {
	if IsLambda() {
		return "/tmp"
	}
	return filepath.Join(".", "tmp")
}

// GetenvWithDefault returns the value of key, or defaultValue when key is
// unset or empty.
func GetenvWithDefault(key string, defaultValue string) string {
	envValue := os.Getenv(key)

	if envValue == "" {
		return defaultValue
	}

	return envValue
}
