package notify

import (
	"github.com/sirupsen/logrus"

	"github.com/lt0911/procure-flow/internal/core/domain"
)

// LogNotifier is the shipped notification sink: it writes structured log
// lines that an external alerting pipeline picks up. Mail/push delivery
// lives outside this service.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) OrderFulfilled(order domain.PurchaseOrder) {
	n.log.WithFields(logrus.Fields{
		"event":     "order_fulfilled",
		"tenant_id": order.TenantID,
		"order_id":  order.ID,
		"reference": order.Reference,
	}).Info("purchase order fulfilled")
}

func (n *LogNotifier) JobFailed(job domain.Job, reason string) {
	n.log.WithFields(logrus.Fields{
		"event":     "job_failed",
		"alert":     true,
		"tenant_id": job.TenantID,
		"job_id":    job.ID,
		"order_id":  job.OrderID,
		"attempts":  job.Attempts,
	}).Error("background job exhausted retries: " + reason)
}

func (n *LogNotifier) LowStock(product domain.Product, quantity int) {
	n.log.WithFields(logrus.Fields{
		"event":         "low_stock",
		"tenant_id":     product.TenantID,
		"product_id":    product.ID,
		"sku":           product.SKU,
		"on_hand":       quantity,
		"reorder_level": product.ReorderLevel,
	}).Warn("product at or below reorder level")
}
