package saga

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"marketplace/internal/pkg/logger"
	"marketplace/internal/pkg/tracing"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/order/domain"
	vendordomain "marketplace/internal/service/seller/domain"
)

// createVendorOrder 返回某个商家的前向动作：解析商家、创建子订单、记录关联。
func (s *FanoutSteps) createVendorOrder(group domain.VendorItems) func(context.Context, *FanoutState) (sagaengine.Compensation, error) {
	return func(ctx context.Context, st *FanoutState) (sagaengine.Compensation, error) {
		ctx, span := s.Tracer.Start(ctx, "saga.fanout.CreateVendorOrder")
		defer span.End()
		span.SetAttributes(
			attribute.String("vendor_id", group.VendorID),
			attribute.String("parent_order_id", st.Parent.ID),
			attribute.Int("items", len(group.Items)),
		)

		vendor, err := s.Vendors.GetVendor(ctx, group.VendorID)
		if err != nil {
			if errors.Is(err, vendordomain.ErrVendorNotFound) {
				err = sagaengine.DependencyFailure(nil, "vendor %s not found", group.VendorID)
			} else {
				err = sagaengine.DependencyFailure(err, "resolve vendor %s", group.VendorID)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "vendor lookup failed")
			return nil, err
		}

		orderID, err := s.Orders.CreateOrder(ctx, domain.NewChildOrder(st.Parent, group.Items))
		if err != nil {
			err = sagaengine.DependencyFailure(err, "create order for vendor %s", vendor.ID)
			span.RecordError(err)
			span.SetStatus(codes.Error, "create order failed")
			return nil, err
		}
		span.SetAttributes(attribute.String("order_id", orderID))

		link := domain.VendorOrderLink{VendorID: vendor.ID, OrderID: orderID, ParentOrderID: st.Parent.ID}
		if err := s.Links.Save(ctx, link); err != nil {
			err = sagaengine.DependencyFailure(err, "link order %s to vendor %s", orderID, vendor.ID)
			span.RecordError(err)
			span.SetStatus(codes.Error, "save link failed")
			// 本步骤失败时协调器不会调用它的补偿，刚创建的订单在这里撤销
			cerr := s.Orders.CancelOrder(tracing.DetachedContext(ctx), orderID)
			if cerr != nil {
				logger.Ctx(ctx).Error().Err(cerr).Str("order_id", orderID).Msg("failed to cancel unlinked vendor order")
				err = errors.Join(err, cerr)
			}
			st.Abandoned = append(st.Abandoned, CreatedOrder{VendorID: vendor.ID, OrderID: orderID, Cancelled: cerr == nil})
			return nil, err
		}

		st.Orders = append(st.Orders, VendorOrder{VendorID: vendor.ID, OrderID: orderID, Items: group.Items})
		st.Links = append(st.Links, link)
		logger.Ctx(ctx).Info().
			Str("vendor_id", vendor.ID).
			Str("order_id", orderID).
			Str("parent_order_id", st.Parent.ID).
			Msg("vendor order created")

		return s.cancelVendorOrder(vendor.ID, orderID), nil
	}
}

// cancelVendorOrder 返回一个幂等的补偿：取消子订单并删除关联。
func (s *FanoutSteps) cancelVendorOrder(vendorID, orderID string) sagaengine.Compensation {
	var (
		mu   sync.Mutex
		done bool
	)
	return func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return nil
		}

		ctx, span := s.Tracer.Start(ctx, "saga.compensation.CancelVendorOrder")
		defer span.End()
		span.SetAttributes(attribute.String("vendor_id", vendorID), attribute.String("order_id", orderID))

		if err := s.Orders.CancelOrder(ctx, orderID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancel order failed")
			return sagaengine.DependencyFailure(err, "cancel order %s", orderID)
		}
		if err := s.Links.Delete(ctx, vendorID, orderID); err != nil {
			span.RecordError(err)
			return sagaengine.DependencyFailure(err, "delete link of order %s", orderID)
		}
		done = true
		return nil
	}
}
