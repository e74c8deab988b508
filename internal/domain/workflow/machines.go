package workflow

import "github.com/rhu/rhu/internal/platform/notification"

const (
	ConsultationPending    State = "pending"
	ConsultationInProgress State = "in_progress"
	ConsultationCompleted  State = "completed"
	ConsultationCancelled  State = "cancelled"

	AcceptAndSchedule Action = "accept_and_schedule"
	UpdateFields      Action = "update_fields"
	MarkCompleted     Action = "mark_completed"
	Cancel            Action = "cancel"
)

const (
	CertificatePending            State = "pending"
	CertificateApprovedForCheckup State = "approved_for_checkup"
	CertificateCompletedCheckup   State = "completed_checkup"
	CertificateReadyForDownload   State = "ready_for_download"
	CertificateDownloaded         State = "downloaded"
	CertificateCancelled          State = "cancelled"
	CertificateExpired            State = "expired"

	ApproveForCheckup Action = "approve_for_checkup"
	CompleteCheckup   Action = "complete_checkup"
	IssueCertificate  Action = "issue_certificate"
	MarkDownloaded    Action = "downloaded"
	Expire            Action = "expire"
)

const (
	ReferralPending   State = "pending"
	ReferralSent      State = "sent"
	ReferralCompleted State = "completed"
	ReferralCancelled State = "cancelled"

	Send     Action = "send"
	Complete Action = "complete"
)

var Consultation = NewMachine("consultation", "consultations",
	[]State{ConsultationPending, ConsultationInProgress, ConsultationCompleted, ConsultationCancelled},
	Transition{
		Action: AcceptAndSchedule, From: []State{ConsultationPending}, To: ConsultationInProgress,
		AuditCode: "CONSULTATION_SCHEDULED", NotificationType: "consultation_scheduled",
		Title: "Consultation accepted and scheduled", Priority: notification.PriorityHigh,
	},
	Transition{
		Action: UpdateFields, From: []State{ConsultationInProgress}, To: ConsultationInProgress,
		AuditCode: "CONSULTATION_UPDATED", NotificationType: "consultation_updated",
		Title: "Consultation updated", Priority: notification.PriorityLow,
	},
	Transition{
		Action: MarkCompleted, From: []State{ConsultationInProgress}, To: ConsultationCompleted,
		AuditCode: "CONSULTATION_COMPLETED", NotificationType: "consultation_completed",
		Title: "Consultation marked as completed", Priority: notification.PriorityNormal,
	},
	Transition{
		Action: Cancel, From: []State{ConsultationPending, ConsultationInProgress}, To: ConsultationCancelled,
		AuditCode: "CONSULTATION_CANCELLED", NotificationType: "consultation_cancelled",
		Title: "Consultation cancelled", Priority: notification.PriorityNormal,
	},
)

var Certificate = NewMachine("certificate", "medical_certificates",
	[]State{
		CertificatePending, CertificateApprovedForCheckup, CertificateCompletedCheckup,
		CertificateReadyForDownload, CertificateDownloaded, CertificateCancelled, CertificateExpired,
	},
	Transition{
		Action: ApproveForCheckup, From: []State{CertificatePending}, To: CertificateApprovedForCheckup,
		AuditCode: "CERTIFICATE_APPROVED_FOR_CHECKUP", NotificationType: "certificate_checkup_scheduled",
		Title: "Certificate request approved for checkup", Priority: notification.PriorityHigh,
	},
	Transition{
		Action: CompleteCheckup, From: []State{CertificateApprovedForCheckup}, To: CertificateCompletedCheckup,
		AuditCode: "CERTIFICATE_CHECKUP_COMPLETED", NotificationType: "certificate_checkup_completed",
		Title: "Checkup marked as completed", Priority: notification.PriorityNormal,
	},
	Transition{
		Action: IssueCertificate, From: []State{CertificateCompletedCheckup}, To: CertificateReadyForDownload,
		AuditCode: "CERTIFICATE_ISSUED", NotificationType: "certificate_ready",
		Title: "Certificate issued and ready for download", Priority: notification.PriorityHigh,
	},
	Transition{
		Action: MarkDownloaded, From: []State{CertificateReadyForDownload}, To: CertificateDownloaded,
		AuditCode: "CERTIFICATE_DOWNLOADED", NotificationType: "certificate_downloaded",
		Title: "Certificate marked as downloaded", Priority: notification.PriorityLow,
	},
	Transition{
		Action: Cancel, From: []State{CertificatePending, CertificateApprovedForCheckup, CertificateCompletedCheckup},
		To: CertificateCancelled, AuditCode: "CERTIFICATE_CANCELLED", NotificationType: "certificate_cancelled",
		Title: "Certificate request cancelled", Priority: notification.PriorityNormal,
	},
	Transition{
		Action: Expire, From: []State{CertificateReadyForDownload, CertificateDownloaded}, To: CertificateExpired,
		AuditCode: "CERTIFICATE_EXPIRED", NotificationType: "certificate_expired",
		Title: "Certificate expired", Priority: notification.PriorityLow,
	},
)

var Referral = NewMachine("referral", "referrals",
	[]State{ReferralPending, ReferralSent, ReferralCompleted, ReferralCancelled},
	Transition{
		Action: UpdateFields, From: []State{ReferralPending}, To: ReferralPending,
		AuditCode: "REFERRAL_UPDATED", NotificationType: "referral_updated",
		Title: "Referral updated", Priority: notification.PriorityLow,
	},
	Transition{
		Action: Send, From: []State{ReferralPending}, To: ReferralSent,
		AuditCode: "REFERRAL_SENT", NotificationType: "referral_sent",
		Title: "Referral sent to facility", Priority: notification.PriorityHigh,
	},
	Transition{
		Action: Complete, From: []State{ReferralSent}, To: ReferralCompleted,
		AuditCode: "REFERRAL_COMPLETED", NotificationType: "referral_completed",
		Title: "Referral marked as completed", Priority: notification.PriorityNormal,
	},
	Transition{
		Action: Cancel, From: []State{ReferralPending, ReferralSent}, To: ReferralCancelled,
		AuditCode: "REFERRAL_CANCELLED", NotificationType: "referral_cancelled",
		Title: "Referral cancelled", Priority: notification.PriorityNormal,
	},
)
