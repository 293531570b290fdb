package gateways

import (
	// Local Packages
	config "remit-orchestrator/config"
	orchestrator "remit-orchestrator/services/orchestrator"
)

// SelectCollection picks the collection gateway variant from config.
func SelectCollection(cfg config.Gateway) orchestrator.CollectionGateway {
	if cfg.Mode == "http" {
		return NewHTTPCollection(cfg.Endpoint, cfg.Timeout)
	}
	return NewMockCollection()
}

// SelectConversion picks the conversion gateway variant from config.
func SelectConversion(cfg config.Gateway) orchestrator.ConversionGateway {
	if cfg.Mode == "http" {
		return NewHTTPConversion(cfg.Endpoint, cfg.Timeout)
	}
	return NewMockConversion()
}

// SelectDisbursement picks the disbursement gateway variant from config.
func SelectDisbursement(cfg config.Gateway) orchestrator.DisbursementGateway {
	if cfg.Mode == "http" {
		return NewHTTPDisbursement(cfg.Endpoint, cfg.Timeout)
	}
	return NewMockDisbursement()
}
