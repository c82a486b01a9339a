// Package faq provides the frequently asked questions shown to agents.
package faq

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jmcleod/kycagent/api"
)

const EndpointFAQs = "/api/faq/get"

// Entry is one question and its answer.
type Entry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Builtin returns the entries that ship with the client.
func Builtin() []Entry {
	return []Entry{
		{
			Question: "What is Telecom KYC?",
			Answer:   "Telecom KYC (Know Your Customer) is a process where telecom providers verify the identity of customers using official identification documents to ensure compliance with regulatory standards.",
		},
		{
			Question: "Why is KYC important in telecommunications?",
			Answer:   "KYC helps prevent fraud, enables better customer service, and ensures compliance with legal requirements to prevent identity theft and other forms of misuse.",
		},
		{
			Question: "What documents are required for Telecom KYC?",
			Answer:   "Commonly required documents include a government-issued ID (e.g., passport, driver’s license), proof of address, and sometimes a recent photograph.",
		},
		{
			Question: "Is KYC mandatory for all telecom customers?",
			Answer:   "Yes, most telecom regulators mandate KYC to protect both the provider and customers, especially for prepaid and postpaid connections.",
		},
		{
			Question: "How long does the KYC process take?",
			Answer:   "The KYC process duration varies, but it usually takes a few minutes to a couple of days, depending on the verification method used by the telecom provider.",
		},
		{
			Question: "What happens if my KYC is not completed?",
			Answer:   "If KYC is incomplete, your telecom service provider may restrict or suspend your services until verification is completed.",
		},
	}
}

type faqResponse struct {
	FAQs []Entry `json:"faqs"`
}

// Fetch returns the server's FAQ list. Any failure, connectivity included,
// yields the built-in list; the bool reports whether the server answered.
func Fetch(ctx context.Context, client *api.Client, logger *slog.Logger) ([]Entry, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	resp, err := client.Do(ctx, api.Request{Method: http.MethodGet, Endpoint: EndpointFAQs})
	if err != nil || resp.ConnectionError() || !resp.Status() {
		logger.Debug("using built-in faqs")
		return Builtin(), false
	}
	var out faqResponse
	if err := resp.Decode(&out); err != nil || len(out.FAQs) == 0 {
		logger.Warn("faq response unusable, using built-in faqs")
		return Builtin(), false
	}
	return out.FAQs, true
}
