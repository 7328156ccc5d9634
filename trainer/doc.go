// Package trainer provides high-level training orchestration for gradnet
// networks. A Session owns one compute engine and drives the cooperative
// step loop over a fixed sample table, keeping append-only history and
// epoch metrics for its collaborators to read.
package trainer
