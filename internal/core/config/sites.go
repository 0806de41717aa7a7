package config

import "strings"

// Platforms that a Site may route to
var Platforms = []string{"youtube", "tiktok", "instagram", "terabox", "generic"}

// Site routes URLs containing Match to a platform chain, for mirror domains
// the built-in routing does not know about
type Site struct {
	// Match is a substring to match against the URL (e.g., "terasharelink")
	Match string `yaml:"match" validate:"required"`

	// Platform is the chain name (e.g., "terabox")
	Platform string `yaml:"platform" validate:"required,oneof=youtube tiktok instagram terabox generic"`
}

// MatchSite finds a matching site for the given URL
func (c *Config) MatchSite(url string) *Site {
	if c == nil {
		return nil
	}
	lower := strings.ToLower(url)
	for i := range c.Sites {
		if strings.Contains(lower, strings.ToLower(c.Sites[i].Match)) {
			return &c.Sites[i]
		}
	}
	return nil
}

// AddSite adds a site, replacing an existing one with the same match
func (c *Config) AddSite(match, platform string) {
	for i := range c.Sites {
		if c.Sites[i].Match == match {
			c.Sites[i].Platform = platform
			return
		}
	}
	c.Sites = append(c.Sites, Site{Match: match, Platform: platform})
}

// RemoveSite removes a site by match string
func (c *Config) RemoveSite(match string) bool {
	for i := range c.Sites {
		if c.Sites[i].Match == match {
			c.Sites = append(c.Sites[:i], c.Sites[i+1:]...)
			return true
		}
	}
	return false
}
