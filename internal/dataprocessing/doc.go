// Package dataprocessing loads the raw inputs of the analytics engine:
// per-instrument daily price CSVs and the distribution-events CSV.
//
// Price files follow the <INSTRUMENT>_daily.csv naming convention and may
// use any common header spelling (Date/Open/High/Low/Close/Volume and
// variants); dates are accepted in several formats. Rows that fail to
// parse are logged and skipped rather than failing the whole file, and
// bars are deduplicated by date and sorted chronologically before they
// reach the recovery engine.
//
// The package also provides a data-quality Checker that inspects loaded
// prices and events per instrument and reports errors (data that would
// corrupt analysis, such as high < low or duplicate ex-dates) separately
// from warnings (suspicious but usable data, such as a >50% daily move).
// Quality reports never abort a batch; callers decide per instrument.
package dataprocessing
