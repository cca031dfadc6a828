// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package services adapts Glucobar's components to suture.Service.

	HTTPServerService     ListenAndServe/Shutdown -> Serve
	SyncEngineService     Start/Stop              -> Serve
	WebSocketHubService   RunWithContext          -> Serve
	EventRouterService    Run/Close               -> Serve

Every wrapper returns ctx.Err() on a requested shutdown and a wrapped error
on failure, which suture treats as a restart.
*/
package services
