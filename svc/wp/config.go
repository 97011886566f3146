package wp

// Config points the client at a WordPress/WooCommerce site.
type Config struct {
	BaseURL          string `env:"WP_BASE_URL" envDefault:"http://localhost:8080"`
	PrettyPermalinks bool   `env:"WP_PRETTY_PERMALINKS" envDefault:"false"`

	// Static WooCommerce REST credentials, used only for Basic-Auth calls.
	ConsumerKey    string `env:"WC_CONSUMER_KEY"`
	ConsumerSecret string `env:"WC_CONSUMER_SECRET"`
}

// Routes builds the route resolver for the configured site.
func (c Config) Routes() (Routes, error) {
	return NewRoutes(c.BaseURL, c.PrettyPermalinks)
}
