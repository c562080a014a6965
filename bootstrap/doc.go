// Package bootstrap composes resource registration with the operations that
// must follow it on the registered executor's worker, such as binding a
// listener or dialing a connection.
//
// Registration completes asynchronously, on a worker that may not have
// started when the operation is requested. [RegisterThenRun] chains the
// second step onto the registration: if registration has already completed
// the step is submitted directly, avoiding an extra hop, otherwise it is
// run from a listener. Notifications for the combined result are delivered
// on a fallback executor until the registration succeeds, and on the
// registered executor after that, see
// [executor.PendingRegistrationPromise].
//
// [Bootstrap] applies this to resources created by a [Factory], handing
// them out across an [executor.Group]. [NetResource] is a TCP (or any
// net.Listen / net.Dial network) implementation of [Resource].
package bootstrap
