// Package billing provides domain models for recurring subscription billing and dunning.
//
// This package implements the recurring billing bounded context, which is responsible for:
//   - Generating billing periods from a billing schedule (fixed or rolling)
//   - Collecting and prorating charges for subscriptions
//   - The recurring order lifecycle (draft, needs_payment, completed, failed)
//   - Deciding retry delays and the final disposition after payment declines
//
// Key Aggregates:
//   - Subscription: A customer's recurring purchase of a product or service
//   - RecurringOrder: The order generated for one billing period
//   - BillingSchedule: Period strategy, billing type and dunning configuration
//
// Value Objects:
//   - BillingPeriod: Half-open time interval [start, end)
//   - Charge: Amount to bill for one item over one period
//   - Interval: Calendar interval used by schedule strategies
//
// Orchestration of these models lives in the application layer; this package
// performs no I/O and takes the current time as an explicit parameter.
package billing
