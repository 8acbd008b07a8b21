package config

import "daily-news-bot/normalize"

var priorityKeywords = []string{
	"分析", "データ", "調査", "研究", "トレンド",
	"戦略", "事例", "ケーススタディ", "インタビュー",
	"解説", "ノウハウ", "手法", "最新動向",
}

var excludePhrases = []string{
	"有料会員", "会員限定", "有料記事", "プレスリリース", "ニュースリリース",
	"開催のお知らせ", "イベント開催", "講演会", "参加者募集", "発売開始", "新発売",
	"press release",
}

func defaultFeeds() []FeedConfig {
	return []FeedConfig{
		{Name: "日経クロストレンド", URLs: []string{
			"https://xtrend.nikkei.com/rss/atcl/new.rdf",
			"https://xtrend.nikkei.com/rss/atcl/feature.rdf",
		}},
		{Name: "MarkeZine", URLs: []string{"https://markezine.jp/rss/new/20/index.xml"}},
		{Name: "ITmedia マーケティング", URLs: []string{"https://marketing.itmedia.co.jp/mm/rss/news.xml"}},
		{Name: "日経ビジネス", URLs: []string{"https://business.nikkei.com/rss/nb.rdf"}},
		{Name: "CNET Japan", URLs: []string{"https://japan.cnet.com/rss/index.rdf"}},
	}
}

func defaultSearches() []SearchConfig {
	return []SearchConfig{
		{
			Name:     "Google News",
			Endpoint: "https://news.google.com/rss/search?q={query}&hl=en-US&gl=US&ceid=US:en",
			Query:    "community marketing",
			Language: "secondary",
			Tags:     []string{"コミュニティ", "マーケティング"},
		},
	}
}

func defaultTagRules() []normalize.TagRule {
	return []normalize.TagRule{
		{Tag: "AI", Keywords: []string{"ai", "人工知能", "機械学習", "生成ai", "chatgpt"}},
		{Tag: "マーケティング", Keywords: []string{"マーケティング", "広告", "プロモーション"}},
		{Tag: "SNS", Keywords: []string{"sns", "twitter", "instagram", "tiktok", "facebook", "x"}},
		{Tag: "コミュニティ", Keywords: []string{"コミュニティ", "ユーザー", "ファン"}},
		{Tag: "データ分析", Keywords: []string{"データ", "分析", "調査", "統計"}},
		{Tag: "戦略", Keywords: []string{"戦略", "施策", "手法"}},
		{Tag: "事例", Keywords: []string{"事例", "ケーススタディ", "インタビュー"}},
	}
}
