package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/nfrguard/nfrguard/bus"
)

// SNSAPI is the slice of the SDK client the fallback uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS is the fallback transport: one topic per event type, named by
// replacing dots with dashes under a common prefix.
type SNS struct {
	client    SNSAPI
	arnPrefix string
}

var _ bus.Fallback = (*SNS)(nil)

// NewSNS creates the fallback. arnPrefix is everything up to the topic name,
// e.g. "arn:aws:sns:ap-southeast-2:123456789012:nfrguard-".
func NewSNS(client SNSAPI, arnPrefix string) *SNS {
	return &SNS{client: client, arnPrefix: arnPrefix}
}

// NewSNSFromConfig builds the SDK client from an aws.Config.
func NewSNSFromConfig(cfg aws.Config, arnPrefix string) *SNS {
	return NewSNS(sns.NewFromConfig(cfg), arnPrefix)
}

// TopicARN maps an event type to its SNS topic.
func (t *SNS) TopicARN(topic string) string {
	return t.arnPrefix + strings.ReplaceAll(topic, ".", "-")
}

// Publish sends the JSON payload to the topic's SNS topic.
func (t *SNS) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(t.TopicARN(topic)),
		Message:  aws.String(string(payload)),
		Subject:  aws.String(fmt.Sprintf("NFRGuard event: %s", topic)),
	})
	return err
}
