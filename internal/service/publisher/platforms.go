package publisher

// Platform names as stored in content_strategy.target_platform and
// platform_integrations.platform.
const (
	PlatformGitHub    = "github"
	PlatformReddit    = "reddit"
	PlatformLinkedIn  = "linkedin"
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
	PlatformMedium    = "medium"
	PlatformQuora     = "quora"
	PlatformShopify   = "shopify"
	PlatformWordPress = "wordpress"
)

// Platforms lists every supported platform in registration order.
var Platforms = []string{
	PlatformGitHub,
	PlatformReddit,
	PlatformLinkedIn,
	PlatformInstagram,
	PlatformFacebook,
	PlatformMedium,
	PlatformQuora,
	PlatformShopify,
	PlatformWordPress,
}
