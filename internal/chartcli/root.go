// Package chartcli implements the chartctl command line client.
package chartcli

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tidb-charts/internal/series"
)

const (
	envPrefix        = "TICHARTS"
	defaultServerURL = "http://localhost:8080"
)

type options struct {
	v *viper.Viper
	// httpClient is replaced in tests.
	httpClient *http.Client
}

func (o *options) client() *series.Client {
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.v.GetDuration("timeout")}
	}
	return series.NewClient(o.v.GetString("server"), series.WithHTTPClient(httpClient))
}

// NewRootCmd builds the chartctl command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "chartctl",
		Short: "Query chart data from a tidb-charts server",
		Long: `chartctl reads normalized chart data and table schemas from a
tidb-charts server and renders them in the terminal.

The server URL is taken from --server or TICHARTS_SERVER.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("server", defaultServerURL, "Chart server base URL")
	cmd.PersistentFlags().Duration("timeout", 30*time.Second, "HTTP request timeout")
	_ = opts.v.BindPFlag("server", cmd.PersistentFlags().Lookup("server"))
	_ = opts.v.BindPFlag("timeout", cmd.PersistentFlags().Lookup("timeout"))
	opts.v.SetEnvPrefix(envPrefix)
	opts.v.AutomaticEnv()

	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newSchemaCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))

	return cmd
}
