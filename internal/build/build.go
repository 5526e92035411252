package build

import "strings"

var (
	Version = "dev"
	AppName = "ProbeFlow"
	Slug    = ""
)

func init() {
	if Slug == "" {
		Slug = strings.ToLower(AppName)
	}
}
