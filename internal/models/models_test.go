package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMarketplace(t *testing.T) {
	cases := map[string]Marketplace{
		"https://www.wildberries.ru/catalog/1234/detail.aspx": MarketplaceWildberries,
		"https://WB.RU/x":                                    MarketplaceWildberries,
		"https://www.ozon.ru/product/abc":                    MarketplaceOzon,
		"https://ozon.com/p/1":                               MarketplaceOzon,
		"https://market.yandex.ru/product--x/1":              MarketplaceYandexMarket,
		"https://yandex.ru/market/item":                      MarketplaceYandexMarket,
		"https://aliexpress.ru/item/1.html":                  MarketplaceOther,
		"":                                                   MarketplaceOther,
	}
	for url, want := range cases {
		assert.Equal(t, want, DetectMarketplace(url), url)
	}
}

func TestProductDecodeNormalisesMarketplace(t *testing.T) {
	raw := `{"id":3,"user_id":1,"name":"iPhone 15","url":"https://wildberries.ru/x",
		"marketplace":"yandex_market","parsing_status":"completed","last_parsed_at":null,
		"review_count":12,"created_at":"2024-01-01T00:00:00","updated_at":"2024-01-02T00:00:00"}`
	var p Product
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, MarketplaceYandexMarket, p.Marketplace)
	assert.Equal(t, ParsingCompleted, p.ParsingStatus)
	assert.Nil(t, p.LastParsedAt)

	require.NoError(t, json.Unmarshal([]byte(`{"marketplace":"unknown"}`), &p))
	assert.Equal(t, MarketplaceOther, p.Marketplace)
}

func TestLabelForScore(t *testing.T) {
	assert.Equal(t, SentimentPositive, LabelForScore(0.8))
	assert.Equal(t, SentimentNeutral, LabelForScore(0.1))
	assert.Equal(t, SentimentNeutral, LabelForScore(-0.05))
	assert.Equal(t, SentimentNegative, LabelForScore(-0.6))
}

func TestSessionLoggedIn(t *testing.T) {
	var s *Session
	assert.False(t, s.LoggedIn())
	assert.False(t, (&Session{UserID: 1}).LoggedIn())
	assert.True(t, (&Session{Token: "t"}).LoggedIn())
}

func TestReviewOptionalFields(t *testing.T) {
	var r Review
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"product_id":2,"text":"ok","date":"2024-05-01",
		"author":null,"rating":5,"sentiment":0.4,"sentiment_label":"positive","summary":null}`), &r))
	require.NotNil(t, r.Rating)
	assert.Equal(t, 5, *r.Rating)
	require.NotNil(t, r.SentimentLabel)
	assert.Equal(t, SentimentPositive, *r.SentimentLabel)
	assert.Nil(t, r.Author)
}
