package probe

import (
	"slices"

	"github.com/nao1215/feedscan/internal/config"
)

// fastEndpoints are the most common feed locations across blog engines,
// static site generators and hosted platforms.
var fastEndpoints = []string{
	"feed",
	"rss",
	"atom",
	"feed.xml",
	"rss.xml",
	"atom.xml",
	"index.xml",
	"feed.json",
	"feed/",
	"rss/",
	"feeds",
	"index.rss",
	"index.atom",
	"rss.php",
	"feed.php",
	"feed/atom",
	"feed/rss",
	"feed/rss2",
	"rss/index.xml",
	"?feed=rss2",
	"?feed=atom",
	"?format=rss",
	"feeds/posts/default",
	"blog/feed",
	"blog/rss",
}

// standardExtraEndpoints cover CMS and framework specific locations.
var standardExtraEndpoints = []string{
	"feed/rdf",
	"feed/atom/",
	"feed/rss/",
	"rss2",
	"rss2.xml",
	"rdf",
	"index.rdf",
	"rss.rdf",
	"feed.atom",
	"feed.rss",
	"feed/json",
	"jsonfeed",
	"feed/jsonfeed",
	"feeds.json",
	"index.json",
	"atom/feed",
	"rss/feed",
	"feeds/posts/default?alt=rss",
	"feeds/all.atom.xml",
	"feeds/rss.xml",
	"feeds/atom.xml",
	"feeds/feed.xml",
	"feeds/default",
	"blog.xml",
	"blog.rss",
	"blog.atom",
	"blog/atom.xml",
	"blog/feed.xml",
	"blog/rss.xml",
	"blog/index.xml",
	"blog/feed.json",
	"news.xml",
	"news.rss",
	"news/feed",
	"news/rss",
	"news/atom",
	"news/feed.xml",
	"news/rss.xml",
	"articles/feed",
	"articles/rss",
	"posts/feed",
	"posts.rss",
	"posts.atom",
	"posts/index.xml",
	"?format=feed&type=rss",
	"?format=feed&type=atom",
	"?feed=rss",
	"?feed=rdf",
	"?rss=1",
	"index.php?format=feed&type=rss",
	"index.php/feed",
	"index.php?feed=rss2",
	"index.php?option=com_content&view=featured&format=feed",
	"rss/news",
	"rss/all",
	"rss/latest",
	"latest.rss",
	"latest.xml",
	"all.xml",
	"updates.xml",
	"updates.atom",
	"content/feed",
	"en/feed",
	"en/rss",
	"en/rss.xml",
	"comments/feed",
	"wp-rss2.php",
	"wp-atom.php",
	"wp-rss.php",
	"wp-rdf.php",
	"podcast.xml",
	"podcast/feed",
	"podcast.rss",
	"episodes.rss",
	"ghost/rss",
}

// exhaustiveSections are site sections that commonly carry their own feed.
var exhaustiveSections = []string{
	"articles",
	"posts",
	"updates",
	"press",
	"stories",
	"journal",
	"changelog",
	"releases",
	"podcast",
	"category/news",
	"en",
	"de",
	"fr",
	"es",
	"community",
	"docs",
	"engineering",
}

// exhaustiveSuffixes are appended to every exhaustive section.
var exhaustiveSuffixes = []string{
	"feed",
	"rss",
	"atom",
	"feed.xml",
	"rss.xml",
	"atom.xml",
	"index.xml",
	"feed.json",
}

// exhaustiveLegacyEndpoints are rare, legacy and platform specific
// locations.
var exhaustiveLegacyEndpoints = []string{
	"syndication.axd",
	"rss.aspx",
	"feed.aspx",
	"rss.asp",
	"rss.cfm",
	"rss.cgi",
	"rss.jsp",
	"rss.pl",
	"atom.php",
	"rdf.php",
	"backend.php",
	"backend.rss",
	"export/rss",
	"export/rss.xml",
	"external.php?type=RSS2",
	"syndication.php",
	"feed.rdf",
	"feed.rss2",
	"rss091.xml",
	"rss092.xml",
	"rss10.xml",
	"rss20.xml",
	"rss_2.0.xml",
	"atom10.xml",
	"index.atom.xml",
	"index.rss.xml",
	"main.rss",
	"main.xml",
	"site.rss",
	"site.xml",
	"sitemap.rss",
	"rss/default.xml",
	"rss/rss.xml",
	"rss/atom.xml",
	"rss/feed.xml",
	"atom/index.xml",
	"feed/index.xml",
	"feed/feed.xml",
	"feed/podcast",
	"feed/podcast/",
	"feeds/all",
	"feeds/latest",
	"feeds/posts",
	"feeds/blog",
	"feeds/news",
	"feeds/rss",
	"feeds/atom",
	"feeds/json",
	"feeds/posts/default?alt=atom",
	"?type=rss",
	"?output=rss",
	"?output=atom",
	"?view=rss",
	"?rss",
	"?atom",
	"?feed",
	"?mode=rss",
	"index.php?type=rss",
	"index.php?action=.xml;type=rss",
	"index.php/rss",
	"index.php/atom",
	"index.php?/feeds/index.rss2",
	"index.php?/feeds/atom10",
	"index.php?rss=1",
	"blog/?feed=rss2",
	"blog/?format=rss",
	"blog/atom",
	"blog/feed/atom",
	"blog/index.rss",
	"blog/posts.rss",
	"blog/rss2",
	"news/?format=rss",
	"news/index.rss",
	"news/index.xml",
	"news/rss2",
	"latest/feed",
	"latest.atom",
	"recent.rss",
	"recent.xml",
	"all.rss",
	"all.atom",
	"everything.xml",
	"home/feed",
	"home.rss",
	"category/feed",
	"comments/rss",
	"comments.rss",
	"comments.xml",
	"activity.atom",
	"activity.rss",
	"commits.atom",
	"releases.atom",
	"tags.atom",
	"episodes/feed",
	"episodes.xml",
	"itunes.xml",
	"podcast/rss",
	"podcast/rss.xml",
	"audio.rss",
	"video.rss",
	"media/rss",
	"api/rss",
	"api/feed",
	"api/feed.json",
	"wp/feed",
	"wordpress/feed",
	"user/feed",
	"users/feed",
	"s/feed",
	"rss.php?type=rss",
	"rss.php?mode=recent",
	"rdf.xml",
	"b/feed",
	"feed?type=rss",
	"feed?format=atom",
	"feed.xml?type=rss",
	"_feed.xml",
	"jsonfeed.json",
	"feed.jsonfeed",
}

var (
	standardEndpoints   = concatUnique(fastEndpoints, standardExtraEndpoints)
	exhaustiveEndpoints = concatUnique(standardEndpoints, sectionEndpoints(), exhaustiveLegacyEndpoints)
)

// Endpoints returns the endpoint names of the tier selected by mode.
// Unknown modes select the standard tier.
func Endpoints(mode config.SearchMode) []string {
	switch mode {
	case config.SearchModeFast:
		return slices.Clone(fastEndpoints)
	case config.SearchModeExhaustive:
		return slices.Clone(exhaustiveEndpoints)
	default:
		return slices.Clone(standardEndpoints)
	}
}

func sectionEndpoints() []string {
	out := make([]string, 0, len(exhaustiveSections)*len(exhaustiveSuffixes))
	for _, section := range exhaustiveSections {
		for _, suffix := range exhaustiveSuffixes {
			out = append(out, section+"/"+suffix)
		}
	}
	return out
}

func concatUnique(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
