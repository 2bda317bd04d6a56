// Package domain models the SYNOP observation calendar and the artifacts a
// run produces from it.
//
// # Data Source
//
// Surface observations arrive as WMO TAC bulletins written by the upstream
// message switch into a date-partitioned tree:
//
//	{DATA_DIR}/{YYYY}/{MM}/{DD}/SMAL40DAAA190600 ...
//
// The bulletin header carries the report family (SMAL for the main synoptic
// hours 00/06/12/18 UTC, SIAL for the intermediate hours 03/09/15/21 UTC),
// followed by the day of month and the observation time. Each [Slot] matches
// its files with a glob pattern where {DD} stands for the day of month.
//
// # Missing Reports
//
// When a station does not report, the bulletin still carries a placeholder
// line made of the station index and the NIL token:
//
//	60390 NIL=
//
// Station indexes start with the WMO block number (60 for the stations this
// service handles). Placeholder lines are dropped before conversion; see
// [MissingReportFilter].
//
// # Output
//
// Each slot with data becomes one BUFR file named after the observation time,
// archived under the slot's calendar date:
//
//	{BUFR_OUTPUT_BASE_DIR}/{YYYY}/{MM}/{DD}/Synop_{YYYYMMDD}{HHMM}.bufr
//
// A run covers today and the previous day. The previous day is complete by
// the time the run starts, which is why it contributes all eight synoptic
// hours while today only contributes 00 and 06 UTC.
package domain
