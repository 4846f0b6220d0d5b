package metrics

import (
	"context"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/aws"
)

// CloudWatch publishes each observation as a custom metric datum. Lambda
// instances are short lived, so nothing is buffered.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewCloudWatch creates a recorder writing to namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

func (c *CloudWatch) put(ctx context.Context, name string, dims map[string]string) {
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  sdkaws.Time(c.nowFunc()),
	}
	names := make([]string, 0, len(dims))
	for k := range dims {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(dims[k]),
		})
	}
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		c.logger.Warn("put metric data failed", zap.String("metric", name), zap.Error(err))
	}
}

func (c *CloudWatch) CheckoutSession(ctx context.Context, outcome string) {
	c.put(ctx, "CheckoutSessions", map[string]string{"Outcome": outcome})
}

func (c *CloudWatch) WebhookEvent(ctx context.Context, eventType, outcome string) {
	c.put(ctx, "WebhookEvents", map[string]string{"EventType": eventType, "Outcome": outcome})
}

func (c *CloudWatch) GiftTransition(ctx context.Context, status string) {
	c.put(ctx, "GiftRecords", map[string]string{"Status": status})
}

func (c *CloudWatch) EventDropped(ctx context.Context, reason string) {
	c.put(ctx, "EventsDropped", map[string]string{"Reason": reason})
}

func (c *CloudWatch) Confirmation(ctx context.Context, outcome string) {
	c.put(ctx, "DeferredConfirmations", map[string]string{"Outcome": outcome})
}
